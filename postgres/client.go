package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/core"
)

// AuditTable is the in-source audit table populated by the capture triggers.
// Tables carrying this prefix are excluded from autoconf.
const (
	AuditTable  = "surreal_sync_changes"
	TablePrefix = "surreal_sync_"
)

// NewPool opens a connection pool for the given libpq-compatible connection
// string.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, &core.ConfigError{Msg: "invalid postgresql connection string", Err: err}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &core.SourceError{Op: "connect postgresql", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &core.SourceError{Op: "ping postgresql", Err: err}
	}
	log.WithField("database", cfg.ConnConfig.Database).Debug("connected to postgresql")
	return pool, nil
}

// userTables enumerates public user tables, excluding the engine's own audit
// artefacts.
func userTables(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	const q = `
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename NOT LIKE $1
		ORDER BY tablename`
	rows, err := pool.Query(ctx, q, TablePrefix+"%")
	if err != nil {
		return nil, &core.SourceError{Op: "list tables", Err: err}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &core.SourceError{Op: "scan table name", Err: err}
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// introspectTable reads column metadata for one table.
func introspectTable(ctx context.Context, pool *pgxpool.Pool, table string) (*tableMeta, error) {
	const q = `
		SELECT
			c.column_name,
			c.data_type,
			COALESCE(c.numeric_precision, 0),
			COALESCE(c.numeric_scale, 0),
			COALESCE(c.udt_name, ''),
			c.is_nullable = 'YES',
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_name = c.table_name
					AND kcu.column_name = c.column_name
			)
		FROM information_schema.columns c
		WHERE c.table_schema = 'public' AND c.table_name = $1
		ORDER BY c.ordinal_position`
	rows, err := pool.Query(ctx, q, table)
	if err != nil {
		return nil, &core.SourceError{Op: "introspect " + table, Err: err}
	}
	defer rows.Close()

	meta := &tableMeta{Name: table}
	for rows.Next() {
		var name, dataType, udt string
		var precision, scale int
		var nullable, isPrimary bool
		if err := rows.Scan(&name, &dataType, &precision, &scale, &udt, &nullable, &isPrimary); err != nil {
			return nil, &core.SourceError{Op: "introspect " + table, Err: err}
		}
		t, err := columnType(dataType, precision, scale, udt)
		if err != nil {
			return nil, err
		}
		meta.Columns = append(meta.Columns, column{
			Name:      name,
			Type:      t,
			Nullable:  nullable,
			IsPrimary: isPrimary,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &core.SourceError{Op: "introspect " + table, Err: err}
	}
	if len(meta.Columns) == 0 {
		return nil, &core.SourceError{Op: "introspect " + table, Err: fmt.Errorf("table not found")}
	}
	return meta, nil
}
