package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/core"
)

// auditDDL creates the audit table the capture triggers insert into. The
// sequence id is the source-wide commit order of captured changes.
const auditDDL = `
CREATE TABLE IF NOT EXISTS surreal_sync_changes (
	sequence_id BIGSERIAL PRIMARY KEY,
	table_name TEXT NOT NULL,
	operation TEXT NOT NULL,
	row_id TEXT NOT NULL,
	change_data JSONB,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// captureFunctionDDL installs the shared trigger function. The primary key
// column name arrives as the trigger's first argument; post-images are
// serialised with row_to_json so the shared JSON codec decodes them.
const captureFunctionDDL = `
CREATE OR REPLACE FUNCTION surreal_sync_capture() RETURNS trigger AS $$
DECLARE
	pk_column TEXT := TG_ARGV[0];
	pk_value TEXT;
	payload JSONB;
BEGIN
	IF TG_OP = 'DELETE' THEN
		EXECUTE format('SELECT ($1).%I::text', pk_column) INTO pk_value USING OLD;
		payload := NULL;
	ELSE
		EXECUTE format('SELECT ($1).%I::text', pk_column) INTO pk_value USING NEW;
		payload := row_to_json(NEW)::jsonb;
	END IF;
	INSERT INTO surreal_sync_changes (table_name, operation, row_id, change_data)
	VALUES (TG_TABLE_NAME, TG_OP, pk_value, payload);
	IF TG_OP = 'DELETE' THEN
		RETURN OLD;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`

// SetupChangeTracking installs the audit table and one AFTER trigger per
// synced table. Setup is idempotent and survives restarts; the audit table
// must not be dropped while any run is in flight.
func SetupChangeTracking(ctx context.Context, pool *pgxpool.Pool, tables []string) error {
	if _, err := pool.Exec(ctx, auditDDL); err != nil {
		return &core.SourceError{Op: "create audit table", Err: err}
	}
	if _, err := pool.Exec(ctx, captureFunctionDDL); err != nil {
		return &core.SourceError{Op: "create capture function", Err: err}
	}

	for _, table := range tables {
		meta, err := introspectTable(ctx, pool, table)
		if err != nil {
			return err
		}
		pk := meta.primaryKey()
		if pk == nil {
			return &core.SourceError{Op: "setup triggers", Err: fmt.Errorf("table %s has no primary key", table)}
		}
		drop := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %q`, triggerName(table), table)
		create := fmt.Sprintf(
			`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %q
			FOR EACH ROW EXECUTE FUNCTION surreal_sync_capture('%s')`,
			triggerName(table), table, pk.Name)
		if _, err := pool.Exec(ctx, drop); err != nil {
			return &core.SourceError{Op: "drop trigger on " + table, Err: err}
		}
		if _, err := pool.Exec(ctx, create); err != nil {
			return &core.SourceError{Op: "create trigger on " + table, Err: err}
		}
		log.WithField("table", table).Debug("installed capture trigger")
	}
	return nil
}

func triggerName(table string) string {
	return TablePrefix + "trigger_" + table
}
