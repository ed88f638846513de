package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/core"
)

const auditDDL = `
CREATE TABLE IF NOT EXISTS surreal_sync_changes (
	sequence_id BIGINT AUTO_INCREMENT PRIMARY KEY,
	table_name VARCHAR(255) NOT NULL,
	operation VARCHAR(16) NOT NULL,
	row_id VARCHAR(255) NOT NULL,
	change_data JSON,
	changed_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
)`

// SetupChangeTracking installs the audit table and AFTER INSERT/UPDATE/DELETE
// triggers per synced table. MySQL triggers cannot be parameterised, so the
// post-image JSON_OBJECT is generated per table from its column list.
func SetupChangeTracking(ctx context.Context, db *sql.DB, database string, tables []string) error {
	if _, err := db.ExecContext(ctx, auditDDL); err != nil {
		return &core.SourceError{Op: "create audit table", Err: err}
	}

	for _, table := range tables {
		meta, err := introspectTable(ctx, db, database, table)
		if err != nil {
			return err
		}
		pk := meta.primaryKey()
		if pk == nil {
			return &core.SourceError{Op: "setup triggers", Err: fmt.Errorf("table %s has no primary key", table)}
		}
		for _, stmt := range triggerDDL(table, pk.Name, meta) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return &core.SourceError{Op: "create trigger on " + table, Err: err}
			}
		}
		log.WithField("table", table).Debug("installed capture triggers")
	}
	return nil
}

// triggerDDL builds the drop+create statements of the three capture triggers
// of one table.
func triggerDDL(table, pkName string, meta *tableMeta) []string {
	postImage := jsonObjectExpr(meta, "NEW")
	var stmts []string
	for _, op := range []struct {
		suffix, event, rowRef, payload string
	}{
		{"ins", "INSERT", "NEW", postImage},
		{"upd", "UPDATE", "NEW", postImage},
		{"del", "DELETE", "OLD", "NULL"},
	} {
		name := fmt.Sprintf("%strigger_%s_%s", TablePrefix, table, op.suffix)
		stmts = append(stmts,
			fmt.Sprintf("DROP TRIGGER IF EXISTS `%s`", name),
			fmt.Sprintf(
				"CREATE TRIGGER `%s` AFTER %s ON `%s` FOR EACH ROW "+
					"INSERT INTO surreal_sync_changes (table_name, operation, row_id, change_data) "+
					"VALUES ('%s', '%s', CAST(%s.`%s` AS CHAR), %s)",
				name, op.event, table, table, op.event, op.rowRef, pkName, op.payload))
	}
	return stmts
}

// jsonObjectExpr renders a JSON_OBJECT('col', ref.col, ...) expression over
// every column of the table.
func jsonObjectExpr(meta *tableMeta, rowRef string) string {
	var parts []string
	for _, c := range meta.Columns {
		parts = append(parts, fmt.Sprintf("'%s', %s.`%s`", c.Name, rowRef, c.Name))
	}
	return "JSON_OBJECT(" + strings.Join(parts, ", ") + ")"
}
