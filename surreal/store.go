package surreal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// DefaultCheckpointTable is the target table checkpoints are stored in.
const DefaultCheckpointTable = "surreal_sync_checkpoints"

// CheckpointStore persists checkpoints in the target database itself,
// satisfying the same contract as the filesystem store. Record ids are
// deterministic, {database_type with dashes as underscores}_{phase}, so
// writes upsert.
type CheckpointStore struct {
	client *Client
	table  string
}

var _ checkpoint.Store = (*CheckpointStore)(nil)

func NewCheckpointStore(client *Client, table string) *CheckpointStore {
	if table == "" {
		table = DefaultCheckpointTable
	}
	return &CheckpointStore{client: client, table: table}
}

func (s *CheckpointStore) recordID(id checkpoint.ID) string {
	return fmt.Sprintf("%s:%s_%s", s.table, strings.ReplaceAll(id.DatabaseType, "-", "_"), id.Phase)
}

func (s *CheckpointStore) Store(ctx context.Context, id checkpoint.ID, data string) error {
	content := map[string]interface{}{
		"checkpoint_data": data,
		"database_type":   id.DatabaseType,
		"phase":           id.Phase,
		"created_at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	sql := fmt.Sprintf("UPSERT %s CONTENT $content", s.recordID(id))
	if _, err := s.client.Query(ctx, sql, map[string]interface{}{"content": content}); err != nil {
		return err
	}
	return nil
}

func (s *CheckpointStore) Read(ctx context.Context, id checkpoint.ID) (*checkpoint.Stored, error) {
	sql := fmt.Sprintf("SELECT * FROM %s", s.recordID(id))
	result, err := s.client.Query(ctx, sql, nil)
	if err != nil {
		return nil, err
	}

	// The query RPC returns one result object per statement.
	var statements []struct {
		Result []struct {
			CheckpointData string `json:"checkpoint_data"`
			DatabaseType   string `json:"database_type"`
			Phase          string `json:"phase"`
			CreatedAt      string `json:"created_at"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &statements); err != nil {
		return nil, &core.CheckpointError{Msg: "decoding checkpoint query response", Err: err}
	}
	if len(statements) == 0 || len(statements[0].Result) == 0 {
		return nil, nil
	}
	rec := statements[0].Result[0]
	createdAt, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return nil, &core.CheckpointError{Msg: "malformed created_at in stored checkpoint", Err: err}
	}
	return &checkpoint.Stored{
		Data:         rec.CheckpointData,
		DatabaseType: rec.DatabaseType,
		Phase:        rec.Phase,
		CreatedAt:    createdAt,
	}, nil
}
