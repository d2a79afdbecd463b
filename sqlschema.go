// sqlschema.go - SQL column metadata cache, derived from FinalModel instead
// of struct reflection tags.
package erp

import (
	"strings"
	"sync"
)

// tableInfo is the SQL-facing view of one model: its table name and the
// precomputed column lists the store needs for SELECT/INSERT/UPDATE.
type tableInfo struct {
	tableName       string
	quotedTableName string
	storedFields    []string // column name order used for SELECT *
	quotedColumns   map[string]string
}

var (
	tableInfoMu sync.RWMutex
	tableInfos  = map[string]*tableInfo{}

	quotesReplacer = strings.NewReplacer(`"`, ``)
)

func tableNameFor(modelName string) string {
	return strings.ToLower(modelName)
}

// buildTableInfo derives and caches a model's table metadata from its final
// fields. It is idempotent; SQLStore.Initialize calls it once per model, and
// the other SQLStore methods and batchFlushDirty call it on demand.
func buildTableInfo(fm *FinalModel) *tableInfo {
	tableInfoMu.RLock()
	if ti, ok := tableInfos[fm.Name]; ok {
		tableInfoMu.RUnlock()
		return ti
	}
	tableInfoMu.RUnlock()

	table := tableNameFor(fm.Name)
	quotedTable := `"` + quotesReplacer.Replace(table) + `"`

	stored := fm.StoredFieldNames()
	quoted := make(map[string]string, len(stored))
	for _, f := range stored {
		quoted[f] = `"` + quotesReplacer.Replace(f) + `"`
	}

	ti := &tableInfo{
		tableName:       table,
		quotedTableName: quotedTable,
		storedFields:    stored,
		quotedColumns:   quoted,
	}

	tableInfoMu.Lock()
	tableInfos[fm.Name] = ti
	tableInfoMu.Unlock()
	return ti
}

func getTableInfo(modelName string) (*tableInfo, bool) {
	tableInfoMu.RLock()
	defer tableInfoMu.RUnlock()
	ti, ok := tableInfos[modelName]
	return ti, ok
}

// resetTableInfoCache clears the cached table metadata; exercised by tests
// that build more than one registry in the same process.
func resetTableInfoCache() {
	tableInfoMu.Lock()
	defer tableInfoMu.Unlock()
	tableInfos = map[string]*tableInfo{}
}
