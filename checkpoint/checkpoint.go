// Package checkpoint defines source positions and their persistence.
//
// A Checkpoint identifies a point in a source's change stream and round-trips
// through a short CLI-safe string, so operators can resume an incremental
// sync with --from-checkpoint. Stored checkpoints additionally carry the
// database type, sync phase and creation time.
package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Database type tags, one per source kind with a durable position.
const (
	TypePostgres         = "postgresql"
	TypePostgresWal2json = "postgresql-wal2json"
	TypeMySQL            = "mysql"
	TypeMongo            = "mongodb"
	TypeNeo4j            = "neo4j"
)

// Sync phases under which checkpoints are stored.
const (
	PhaseFullSyncStart = "full_sync_start"
	PhaseFullSyncEnd   = "full_sync_end"
	PhaseIncremental   = "incremental"
)

// Checkpoint is a source-specific position. Position equality is defined by
// Equal; CapturedAt timestamps on sequence-based variants are informational
// metadata and do not participate.
type Checkpoint interface {
	// DatabaseType returns the source kind tag, e.g. "postgresql-wal2json".
	DatabaseType() string
	// ToCLIString renders the position as a short string suitable for
	// --from-checkpoint / --until-checkpoint flags.
	ToCLIString() string
	// Equal reports whether the other checkpoint denotes the same position.
	Equal(Checkpoint) bool
}

// PostgresTrigger is the position of the trigger+audit-table capture backend:
// the highest observed audit sequence id.
type PostgresTrigger struct {
	SequenceID int64
	CapturedAt time.Time
}

func (c PostgresTrigger) DatabaseType() string { return TypePostgres }
func (c PostgresTrigger) ToCLIString() string  { return strconv.FormatInt(c.SequenceID, 10) }

func (c PostgresTrigger) Equal(o Checkpoint) bool {
	oc, ok := o.(PostgresTrigger)
	return ok && oc.SequenceID == c.SequenceID
}

// PostgresLSN is a PostgreSQL write-ahead-log position as reported by
// pg_current_wal_lsn(), kept as the opaque textual form like "0/1949850".
type PostgresLSN struct {
	LSN string
}

func (c PostgresLSN) DatabaseType() string { return TypePostgresWal2json }
func (c PostgresLSN) ToCLIString() string  { return c.LSN }

func (c PostgresLSN) Equal(o Checkpoint) bool {
	oc, ok := o.(PostgresLSN)
	return ok && oc.LSN == c.LSN
}

// MySQL is the audit-table sequence position of the MySQL capture backend.
type MySQL struct {
	SequenceID int64
	CapturedAt time.Time
}

func (c MySQL) DatabaseType() string { return TypeMySQL }
func (c MySQL) ToCLIString() string  { return strconv.FormatInt(c.SequenceID, 10) }

func (c MySQL) Equal(o Checkpoint) bool {
	oc, ok := o.(MySQL)
	return ok && oc.SequenceID == c.SequenceID
}

// Mongo is a MongoDB change-stream resume token.
type Mongo struct {
	ResumeToken []byte
}

func (c Mongo) DatabaseType() string { return TypeMongo }
func (c Mongo) ToCLIString() string  { return hex.EncodeToString(c.ResumeToken) }

func (c Mongo) Equal(o Checkpoint) bool {
	oc, ok := o.(Mongo)
	return ok && string(oc.ResumeToken) == string(c.ResumeToken)
}

// Neo4j is a wallclock position for the timestamp-polling backend.
type Neo4j struct {
	CapturedAt time.Time
}

func (c Neo4j) DatabaseType() string { return TypeNeo4j }
func (c Neo4j) ToCLIString() string  { return c.CapturedAt.UTC().Format(time.RFC3339Nano) }

func (c Neo4j) Equal(o Checkpoint) bool {
	oc, ok := o.(Neo4j)
	return ok && oc.CapturedAt.Equal(c.CapturedAt)
}

// FromCLIString parses the CLI form of a checkpoint for the given database
// type. Parsing happens before any source connection is opened, so a corrupt
// string fails fast as a user error.
func FromCLIString(databaseType, s string) (Checkpoint, error) {
	switch databaseType {
	case TypePostgres:
		seq, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid postgresql checkpoint %q: %w", s, err)
		}
		return PostgresTrigger{SequenceID: seq}, nil
	case TypePostgresWal2json:
		if !isLSN(s) {
			return nil, fmt.Errorf("invalid postgresql-wal2json checkpoint %q: not an LSN", s)
		}
		return PostgresLSN{LSN: s}, nil
	case TypeMySQL:
		seq, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql checkpoint %q: %w", s, err)
		}
		return MySQL{SequenceID: seq}, nil
	case TypeMongo:
		token, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid mongodb checkpoint %q: %w", s, err)
		}
		return Mongo{ResumeToken: token}, nil
	case TypeNeo4j:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid neo4j checkpoint %q: %w", s, err)
		}
		return Neo4j{CapturedAt: t.UTC()}, nil
	}
	return nil, fmt.Errorf("unknown database type %q", databaseType)
}

// isLSN validates the textual "X/Y" LSN form with hexadecimal halves.
func isLSN(s string) bool {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 16, 64); err != nil {
			return false
		}
	}
	return true
}

// CompareLSN orders two textual LSNs. It returns a negative value when a < b.
func CompareLSN(a, b string) int {
	av := lsnValue(a)
	bv := lsnValue(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	}
	return 0
}

func lsnValue(s string) uint64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	hi, _ := strconv.ParseUint(parts[0], 16, 64)
	lo, _ := strconv.ParseUint(parts[1], 16, 64)
	return hi<<32 | lo
}

// envelope is the tagged JSON form of a checkpoint.
type envelope struct {
	Type        string     `json:"type"`
	SequenceID  *int64     `json:"sequence_id,omitempty"`
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
	LSN         string     `json:"lsn,omitempty"`
	ResumeToken string     `json:"resume_token,omitempty"`
}

// Marshal renders a checkpoint as its tagged JSON serialisation.
func Marshal(c Checkpoint) (string, error) {
	var env envelope
	switch v := c.(type) {
	case PostgresTrigger:
		seq, at := v.SequenceID, v.CapturedAt
		env = envelope{Type: TypePostgres, SequenceID: &seq, CapturedAt: &at}
	case PostgresLSN:
		env = envelope{Type: TypePostgresWal2json, LSN: v.LSN}
	case MySQL:
		seq, at := v.SequenceID, v.CapturedAt
		env = envelope{Type: TypeMySQL, SequenceID: &seq, CapturedAt: &at}
	case Mongo:
		env = envelope{Type: TypeMongo, ResumeToken: hex.EncodeToString(v.ResumeToken)}
	case Neo4j:
		at := v.CapturedAt
		env = envelope{Type: TypeNeo4j, CapturedAt: &at}
	default:
		return "", fmt.Errorf("unknown checkpoint type %T", c)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Unmarshal parses the tagged JSON serialisation produced by Marshal.
func Unmarshal(data []byte) (Checkpoint, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed checkpoint document: %w", err)
	}
	switch env.Type {
	case TypePostgres:
		if env.SequenceID == nil {
			return nil, fmt.Errorf("postgresql checkpoint missing sequence_id")
		}
		c := PostgresTrigger{SequenceID: *env.SequenceID}
		if env.CapturedAt != nil {
			c.CapturedAt = *env.CapturedAt
		}
		return c, nil
	case TypePostgresWal2json:
		if !isLSN(env.LSN) {
			return nil, fmt.Errorf("postgresql-wal2json checkpoint has invalid LSN %q", env.LSN)
		}
		return PostgresLSN{LSN: env.LSN}, nil
	case TypeMySQL:
		if env.SequenceID == nil {
			return nil, fmt.Errorf("mysql checkpoint missing sequence_id")
		}
		c := MySQL{SequenceID: *env.SequenceID}
		if env.CapturedAt != nil {
			c.CapturedAt = *env.CapturedAt
		}
		return c, nil
	case TypeMongo:
		token, err := hex.DecodeString(env.ResumeToken)
		if err != nil {
			return nil, fmt.Errorf("mongodb checkpoint has invalid resume token: %w", err)
		}
		return Mongo{ResumeToken: token}, nil
	case TypeNeo4j:
		if env.CapturedAt == nil {
			return nil, fmt.Errorf("neo4j checkpoint missing captured_at")
		}
		return Neo4j{CapturedAt: env.CapturedAt.UTC()}, nil
	}
	return nil, fmt.Errorf("unknown checkpoint type %q", env.Type)
}
