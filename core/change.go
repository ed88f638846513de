package core

import "fmt"

// ChangeOp is the operation of a captured change.
type ChangeOp int

const (
	OpCreate ChangeOp = iota + 1
	OpUpdate
	OpDelete
)

func (op ChangeOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ParseChangeOp maps the operation tags used by audit tables and wal2json
// ("insert"/"I", "update"/"U", "delete"/"D") to a ChangeOp.
func ParseChangeOp(s string) (ChangeOp, error) {
	switch s {
	case "insert", "INSERT", "I", "create":
		return OpCreate, nil
	case "update", "UPDATE", "U":
		return OpUpdate, nil
	case "delete", "DELETE", "D":
		return OpDelete, nil
	}
	return 0, &UnsupportedError{What: fmt.Sprintf("change operation %q", s)}
}

// Change is one row-level change captured from a source. Update carries the
// full post-image so that application is idempotent; Delete carries only the
// key. Relation is set instead of Key/After when the change is a graph edge.
type Change struct {
	Target   string
	Op       ChangeOp
	Key      Value
	After    *Fields
	Relation *Relation
}

// Row reconstructs the post-image row of a Create or Update change.
func (c *Change) Row() *Row {
	return &Row{Table: c.Target, PrimaryKey: c.Key, Fields: c.After}
}
