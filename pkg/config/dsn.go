package config

import (
	"fmt"
	"os"
	"regexp"
)

var datasourceURL = regexp.MustCompile(`url\s*=\s*(?:env\("([^"]+)"\)|"([^"]+)")`)

// LinkFromSchema reads the datasource url from a Prisma schema file. The
// url may be a literal or an env("NAME") reference.
func LinkFromSchema(schemaFile string) (string, error) {
	data, err := os.ReadFile(schemaFile)
	if err != nil {
		return "", err
	}
	m := datasourceURL.FindStringSubmatch(string(data))
	if len(m) != 3 {
		return "", fmt.Errorf("could not parse datasource url from schema: %s", schemaFile)
	}
	if m[1] != "" {
		link := os.Getenv(m[1])
		if link == "" {
			return "", fmt.Errorf("schema %s: environment variable %s is not set", schemaFile, m[1])
		}
		return link, nil
	}
	return m[2], nil
}
