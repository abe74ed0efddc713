package torm

import (
	"fmt"
	"strings"
)

// Propagation decides how Begin relates a new scope to the transaction
// already active on the session.
type Propagation int

const (
	// Required joins the active transaction or starts a new one.
	Required Propagation = iota + 1
	// Supports runs inside the active transaction if any, else autocommit.
	Supports
	// Mandatory requires an active transaction.
	Mandatory
	// RequiresNew runs in a new transaction on a separate connection.
	RequiresNew
	// NotSupported runs in autocommit on a separate connection.
	NotSupported
	// Never fails when a transaction is active.
	Never
	// Nested runs inside a savepoint of the active transaction, or behaves
	// like Required when there is none.
	Nested
	// NotRequired starts a new transaction and refuses to be nested.
	NotRequired
)

var propagationNames = map[Propagation]string{
	Required:     "REQUIRED",
	Supports:     "SUPPORTS",
	Mandatory:    "MANDATORY",
	RequiresNew:  "REQUIRES_NEW",
	NotSupported: "NOT_SUPPORTED",
	Never:        "NEVER",
	Nested:       "NESTED",
	NotRequired:  "NOT_REQUIRED",
}

func (p Propagation) String() string {
	if name, ok := propagationNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Propagation(%d)", int(p))
}

// ParsePropagation accepts the upper snake case names (REQUIRES_NEW) in any case.
func ParsePropagation(s string) (Propagation, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for p, n := range propagationNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown propagation %q", s)
}
