// sqlstore.go - Postgres-backed Store, a lightweight wrapper around
// pgxpool: no database/sql, no ORM struct mapping, direct pool/tx access.
package erp

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB is the global connection pool BeginTx/BeginTxWithOptions (txn.go) open
// transactions against, mirroring the teacher's own package-level pool.
var DB *pgxpool.Pool

// OpenPool creates a pgxpool configured the way the rest of the system
// expects (simple query protocol, no prepared statements, compatible with
// transaction-mode connection poolers), assigns it to DB, and returns it.
func OpenPool(ctx context.Context, databaseURL string, maxConns, minConns int) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("erp: unable to parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = int32(minConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	poolConfig.ConnConfig.StatementCacheCapacity = 0

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("erp: unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("erp: unable to ping database: %w", err)
	}
	DB = pool
	return pool, nil
}

// CloseDB closes the global pool opened by OpenPool.
func CloseDB() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}

// SQLStore is the Postgres-backed Store. One SQLStore wraps one open
// transaction: savepoints are real nested SAVEPOINTs inside it, so every
// Browse/Search/Create/Update made through an environment's lifetime is
// either committed or rolled back atomically with the environment itself.
type SQLStore struct {
	pool     *pgxpool.Pool
	tx       *Tx
	registry *Registry
	queries  *QueryCache
	log      zerolog.Logger
}

// NewSQLStore wraps pool (and assigns it to DB, since BeginTx/
// BeginTxWithOptions in txn.go open transactions against the global pool).
// Begin must be called before the store is usable.
func NewSQLStore(pool *pgxpool.Pool, registry *Registry, log zerolog.Logger) *SQLStore {
	DB = pool
	return &SQLStore{
		pool:     pool,
		registry: registry,
		queries:  NewQueryCache(1000, 0),
		log:      log,
	}
}

// Begin opens the session's root transaction. Application.NewEnv calls this
// once per environment; every Store method below runs inside it.
func (s *SQLStore) Begin(ctx context.Context) error {
	tx, err := BeginTx(ctx)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// Close commits (or, on a non-nil err, rolls back) the session's root
// transaction.
func (s *SQLStore) Close(ctx context.Context, err error) error {
	if s.tx == nil {
		return nil
	}
	if err != nil {
		return s.tx.Rollback(ctx)
	}
	return s.tx.Commit(ctx)
}

// PoolStats reports connection pool statistics, for health/metrics
// endpoints layered on top of this package.
func (s *SQLStore) PoolStats() (totalConns, acquiredConns, idleConns int32) {
	if s.pool == nil {
		return 0, 0, 0
	}
	stat := s.pool.Stat()
	return stat.TotalConns(), stat.AcquiredConns(), stat.IdleConns()
}

// cachedQuery runs query/args through the store's query cache, so a Browse
// or Search repeated with identical shape (same ids, same domain) reuses the
// cached query/args pair instead of re-allocating the args slice.
func (s *SQLStore) cachedQuery(query string, args []interface{}) (string, []interface{}) {
	if s.queries == nil {
		return query, args
	}
	if entry := s.queries.Get(query, args); entry != nil {
		return entry.Query, entry.Args
	}
	entry := s.queries.Set(query, args)
	return entry.Query, entry.Args
}

type pgxExecer struct{ tx *Tx }

func (p pgxExecer) exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := p.tx.ExecContext(ctx, sql, args...)
	return err
}

// Execer exposes the store's open transaction as the minimal sqlExecer
// surface batchFlushDirty needs, for the environment's dirty-row flush.
func (s *SQLStore) Execer() sqlExecer {
	return pgxExecer{tx: s.tx}
}

// IsInstalled implements Store.
func (s *SQLStore) IsInstalled(ctx context.Context) (bool, error) {
	var exists bool
	row := s.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'plugin')`)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Initialize implements Store: creates a table per registered model plus
// the bootstrap plugin table, deriving every column from FinalModel fields.
func (s *SQLStore) Initialize(ctx context.Context, registry *Registry) error {
	if _, err := s.tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS "plugin" (
		"name" TEXT PRIMARY KEY,
		"description" TEXT NOT NULL DEFAULT '',
		"website" TEXT NOT NULL DEFAULT '',
		"version" TEXT NOT NULL DEFAULT '',
		"state" TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return err
	}

	for _, name := range registry.ModelNames() {
		fm := registry.Get(name)
		ti := buildTableInfo(fm)
		if err := s.createModelTable(ctx, fm, ti); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) createModelTable(ctx context.Context, fm *FinalModel, ti *tableInfo) error {
	columns := []string{`"id" SERIAL PRIMARY KEY`}
	for _, name := range ti.storedFields {
		ff := fm.Fields[name]
		columns = append(columns, ti.quotedColumns[name]+" "+sqlColumnType(ff))
	}

	query := "CREATE TABLE IF NOT EXISTS " + ti.quotedTableName + " (" + joinComma(columns) + ")"
	_, err := s.tx.ExecContext(ctx, query)
	return err
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func sqlColumnType(ff *FinalField) string {
	switch ff.DefaultValue.Kind() {
	case KindString, KindEnum:
		return "TEXT NOT NULL DEFAULT ''"
	case KindI32:
		return "INTEGER NOT NULL DEFAULT 0"
	case KindU32:
		return "INTEGER"
	case KindI64:
		return "BIGINT NOT NULL DEFAULT 0"
	case KindF64:
		return "DOUBLE PRECISION NOT NULL DEFAULT 0"
	case KindBool:
		return "BOOLEAN NOT NULL DEFAULT FALSE"
	case KindIdList:
		return "INTEGER[] NOT NULL DEFAULT '{}'"
	default:
		return "TEXT"
	}
}

// Browse implements Store.
func (s *SQLStore) Browse(ctx context.Context, model string, ids []Id, fields []string) (map[Id]FieldMap, error) {
	if len(ids) == 0 {
		return map[Id]FieldMap{}, nil
	}
	fm := s.registry.Get(model)
	ti, ok := getTableInfo(model)
	if !ok {
		ti = buildTableInfo(fm)
	}

	query, args, cols := buildSelectQuery(ti, ids, fields)
	query, args = s.cachedQuery(query, args)
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRowsToFieldMaps(rows, fm, cols)
}

// Search implements Store.
func (s *SQLStore) Search(ctx context.Context, model string, expr SearchExpr, orderBy []string, limit, offset int) ([]Id, error) {
	fm := s.registry.Get(model)
	ti, ok := getTableInfo(model)
	if !ok {
		ti = buildTableInfo(fm)
	}

	where, args, err := compileSearchExpr(fm, ti.tableName, expr)
	if err != nil {
		return nil, err
	}

	query := "SELECT \"id\" FROM " + ti.quotedTableName + " WHERE " + where
	if len(orderBy) > 0 {
		query += " ORDER BY " + joinComma(quoteOrderBy(ti, orderBy))
	}
	if limit > 0 {
		query += " LIMIT " + itoa(limit)
	}
	if offset > 0 {
		query += " OFFSET " + itoa(offset)
	}

	query, args = s.cachedQuery(query, args)
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []Id
	for rows.Next() {
		var id Id
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func quoteOrderBy(ti *tableInfo, fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if q, ok := ti.quotedColumns[f]; ok {
			out[i] = q
		} else {
			out[i] = `"` + f + `"`
		}
	}
	return out
}

// Create implements Store.
func (s *SQLStore) Create(ctx context.Context, model string, records []FieldMap) ([]Id, error) {
	fm := s.registry.Get(model)
	ti, ok := getTableInfo(model)
	if !ok {
		ti = buildTableInfo(fm)
	}

	ids := make([]Id, 0, len(records))
	for _, rec := range records {
		query, args := buildInsertQuery(ti, rec)
		var id Id
		if err := s.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Update implements Store.
func (s *SQLStore) Update(ctx context.Context, model string, ids []Id, values FieldMap) error {
	ti, ok := getTableInfo(model)
	if !ok {
		ti = buildTableInfo(s.registry.Get(model))
	}
	query, args := buildUpdateQuery(ti, ids, values)
	_, err := s.tx.ExecContext(ctx, query, args...)
	return err
}

// GetInstalledPlugins implements Store.
func (s *SQLStore) GetInstalledPlugins(ctx context.Context) ([]PluginRecord, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT "name", "description", "website", "version", "state" FROM "plugin"`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PluginRecord
	for rows.Next() {
		var rec PluginRecord
		if err := rows.Scan(&rec.Name, &rec.Description, &rec.Website, &rec.Version, &rec.State); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetInstalledPlugin implements Store.
func (s *SQLStore) SetInstalledPlugin(ctx context.Context, rec PluginRecord) error {
	_, err := s.tx.ExecContext(ctx, `INSERT INTO "plugin" ("name", "description", "website", "version", "state")
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ("name") DO UPDATE SET
			"description" = EXCLUDED."description",
			"website" = EXCLUDED."website",
			"version" = EXCLUDED."version",
			"state" = EXCLUDED."state"`,
		rec.Name, rec.Description, rec.Website, rec.Version, rec.State)
	return err
}

// Savepoint implements Store with a real nested SAVEPOINT.
func (s *SQLStore) Savepoint(ctx context.Context, name string) error {
	return s.tx.Savepoint(ctx, name)
}

// Commit implements Store with RELEASE SAVEPOINT.
func (s *SQLStore) Commit(ctx context.Context, name string) error {
	return s.tx.ReleaseSavepoint(ctx, name)
}

// Rollback implements Store with ROLLBACK TO SAVEPOINT.
func (s *SQLStore) Rollback(ctx context.Context, name string) error {
	return s.tx.RollbackToSavepoint(ctx, name)
}

// FlushDirty implements BatchFlusher: one CASE-based multi-row UPDATE per
// distinct dirty-field signature, instead of one UPDATE per id.
func (s *SQLStore) FlushDirty(ctx context.Context, cache *Cache, fm *FinalModel, fields []string, ids []Id) error {
	return batchFlushDirty(ctx, s.Execer(), cache, fm, fields, ids)
}
