package typeconv

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalType normalizes SQL type names reported by the drivers.
func CanonicalType(typ string) string {
	t := strings.ToUpper(strings.TrimSpace(typ))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimPrefix(t, "UNSIGNED ")
	switch t {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "TINYINT", "MEDIUMINT", "SERIAL", "BIGSERIAL":
		return "INTEGER"
	case "BOOL", "BOOLEAN":
		return "BOOLEAN"
	case "TEXT", "VARCHAR", "CHAR", "BPCHAR", "NAME", "CHARACTER VARYING":
		return "TEXT"
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return "REAL"
	case "NUMERIC", "DECIMAL":
		return "NUMERIC"
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "DATE":
		return "TIMESTAMP"
	case "UUID":
		return "UUID"
	case "BYTEA", "BLOB", "BINARY", "VARBINARY":
		return "BYTES"
	default:
		return t
	}
}

// Normalize converts one driver-native column value into the intermediate
// representation: nil, bool, int64, uint64, float64, string, time.Time,
// []byte, map[string]any or []any. sqlType may be empty when the driver
// does not report column types.
func Normalize(v any, sqlType string) (any, error) {
	canon := CanonicalType(sqlType)
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool, int64, uint64, float64, string, time.Time:
		if s, ok := x.(string); ok {
			return fromText(s, canon)
		}
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case float32:
		return float64(x), nil
	case []byte:
		if canon == "BYTES" {
			return x, nil
		}
		if canon == "UUID" && len(x) == 16 {
			return uuid.UUID(x).String(), nil
		}
		return fromText(string(x), canon)
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case uuid.UUID:
		return x.String(), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := Normalize(e, "")
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := Normalize(e, "")
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return nil, fmt.Errorf("driver value: %w", err)
		}
		return Normalize(dv, sqlType)
	case fmt.Stringer:
		return fromText(x.String(), canon)
	default:
		return nil, fmt.Errorf("unsupported column value of type %T", v)
	}
}

// fromText parses textual column data when the SQL type is known to be
// non-textual. Unknown types stay strings.
func fromText(s, canon string) (any, error) {
	switch canon {
	case "INTEGER":
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer %q: %w", s, err)
		}
		return n, nil
	case "REAL", "NUMERIC":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse number %q: %w", s, err)
		}
		return f, nil
	case "BOOLEAN":
		switch strings.ToLower(s) {
		case "t", "true", "1", "y", "yes", "on":
			return true, nil
		case "f", "false", "0", "n", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("parse boolean %q", s)
	}
	return s, nil
}
