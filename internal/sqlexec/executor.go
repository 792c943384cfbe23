// Package sqlexec parses and executes SQL statements against bound record stores.
package sqlexec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adrianmcphee/recordcache"
	"github.com/xwb1989/sqlparser"
)

// Result represents the result of executing a SQL statement
type Result struct {
	Columns      []string
	Rows         [][]string
	RowsAffected int
	Message      string
}

// Executor executes SQL statements against stores bound in a registry.
// Table names resolve to store bindings; DDL that would define schema is
// rejected because stores are bound programmatically with their key field.
type Executor struct {
	registry *recordcache.Registry
}

// NewExecutor creates a new SQL executor
func NewExecutor(registry *recordcache.Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute parses and executes a SQL statement
func (e *Executor) Execute(sql string) (*Result, error) {
	// Handle empty queries
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return &Result{Message: "OK"}, nil
	}

	// Remove trailing semicolon for parser
	sql = strings.TrimSuffix(sql, ";")

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	switch s := stmt.(type) {
	case *sqlparser.Show:
		return e.executeShow(s)
	case *sqlparser.DDL:
		return e.executeDDL(s)
	case *sqlparser.Select:
		return e.executeSelect(s)
	case *sqlparser.Insert:
		return e.executeInsert(s)
	case *sqlparser.Update:
		return e.executeUpdate(s)
	case *sqlparser.Delete:
		return e.executeDelete(s)
	default:
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

// executeShow handles SHOW TABLES
func (e *Executor) executeShow(stmt *sqlparser.Show) (*Result, error) {
	if stmt.Type != "tables" {
		return nil, fmt.Errorf("unsupported SHOW type: %s", stmt.Type)
	}

	names := e.registry.Names()
	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name}
	}
	return &Result{
		Columns: []string{"table_name"},
		Rows:    rows,
		Message: fmt.Sprintf("SHOW %d", len(rows)),
	}, nil
}

// executeDDL handles DROP TABLE; CREATE TABLE is rejected
func (e *Executor) executeDDL(stmt *sqlparser.DDL) (*Result, error) {
	switch stmt.Action {
	case sqlparser.CreateStr:
		return nil, fmt.Errorf("CREATE TABLE not supported: stores are bound programmatically")
	case sqlparser.DropStr:
		tableName := stmt.Table.Name.String()
		if err := e.registry.Unbind(tableName); err != nil {
			return nil, err
		}
		return &Result{Message: fmt.Sprintf("DROP TABLE %s", tableName)}, nil
	default:
		return nil, fmt.Errorf("unsupported DDL action: %s", stmt.Action)
	}
}

// executeSelect handles SELECT statements
func (e *Executor) executeSelect(stmt *sqlparser.Select) (*Result, error) {
	// Get table name from FROM clause
	if len(stmt.From) != 1 {
		return nil, fmt.Errorf("only single table SELECT supported")
	}

	tableName, err := getTableName(stmt.From[0])
	if err != nil {
		return nil, err
	}

	store, err := e.lookupStore(tableName)
	if err != nil {
		return nil, err
	}

	records := e.candidateRecords(store, stmt.Where)

	// Apply WHERE clause filter
	var matched []recordcache.Record
	for _, rec := range records {
		if stmt.Where == nil || matchesWhere(rec, stmt.Where.Expr) {
			matched = append(matched, rec)
		}
	}

	// Determine which columns to return
	var columns []string
	selectAll := false

	for _, expr := range stmt.SelectExprs {
		switch se := expr.(type) {
		case *sqlparser.StarExpr:
			selectAll = true
		case *sqlparser.AliasedExpr:
			if col, ok := se.Expr.(*sqlparser.ColName); ok {
				columns = append(columns, col.Name.String())
			}
		}
	}

	if selectAll {
		columns = recordColumns(store)
	}

	// Convert to string matrix for result
	resultRows := make([][]string, len(matched))
	for i, rec := range matched {
		resultRows[i] = make([]string, len(columns))
		for j, col := range columns {
			if val, ok := rec[col]; ok {
				resultRows[i][j] = fmt.Sprintf("%v", val)
			} else {
				resultRows[i][j] = ""
			}
		}
	}

	return &Result{
		Columns: columns,
		Rows:    resultRows,
		Message: fmt.Sprintf("SELECT %d", len(resultRows)),
	}, nil
}

// executeInsert handles INSERT statements
func (e *Executor) executeInsert(stmt *sqlparser.Insert) (*Result, error) {
	tableName := stmt.Table.Name.String()

	store, err := e.lookupStore(tableName)
	if err != nil {
		return nil, err
	}

	// Get column names
	var columns []string
	for _, col := range stmt.Columns {
		columns = append(columns, col.String())
	}

	// Get values
	rows, ok := stmt.Rows.(sqlparser.Values)
	if !ok {
		return nil, fmt.Errorf("only VALUES clause supported for INSERT")
	}

	for _, valTuple := range rows {
		rec := make(recordcache.Record)
		for i, val := range valTuple {
			if i < len(columns) {
				rec[columns[i]] = evalExpr(val)
			}
		}

		if err := store.Add(rec); err != nil {
			return nil, err
		}
	}

	return &Result{
		RowsAffected: len(rows),
		Message:      fmt.Sprintf("INSERT 0 %d", len(rows)),
	}, nil
}

// executeUpdate handles UPDATE statements
func (e *Executor) executeUpdate(stmt *sqlparser.Update) (*Result, error) {
	if len(stmt.TableExprs) != 1 {
		return nil, fmt.Errorf("only single table UPDATE supported")
	}

	tableName, err := getTableName(stmt.TableExprs[0])
	if err != nil {
		return nil, err
	}

	store, err := e.lookupStore(tableName)
	if err != nil {
		return nil, err
	}

	// Build updates map
	updates := make(recordcache.Record)
	for _, expr := range stmt.Exprs {
		updates[expr.Name.Name.String()] = evalExpr(expr.Expr)
	}

	keyField := store.KeyField()
	_, changesKey := updates[keyField]

	// Collect matches first, then mutate; the store's Update replaces the
	// record rather than editing fields in place.
	var matched []recordcache.Record
	for _, rec := range store.Records() {
		if stmt.Where == nil || matchesWhere(rec, stmt.Where.Expr) {
			matched = append(matched, rec)
		}
	}

	affected := 0
	for _, rec := range matched {
		replacement := rec.Clone()
		for col, val := range updates {
			replacement[col] = val
		}

		if changesKey {
			// Re-keying a record is a remove plus an add.
			if err := store.Remove(rec); err != nil {
				return nil, err
			}
			if err := store.Add(replacement); err != nil {
				return nil, err
			}
		} else {
			if err := store.Update(replacement); err != nil {
				return nil, err
			}
		}
		affected++
	}

	return &Result{
		RowsAffected: affected,
		Message:      fmt.Sprintf("UPDATE %d", affected),
	}, nil
}

// executeDelete handles DELETE statements
func (e *Executor) executeDelete(stmt *sqlparser.Delete) (*Result, error) {
	if len(stmt.TableExprs) != 1 {
		return nil, fmt.Errorf("only single table DELETE supported")
	}

	tableName, err := getTableName(stmt.TableExprs[0])
	if err != nil {
		return nil, err
	}

	store, err := e.lookupStore(tableName)
	if err != nil {
		return nil, err
	}

	var matched []recordcache.Record
	for _, rec := range store.Records() {
		if stmt.Where == nil || matchesWhere(rec, stmt.Where.Expr) {
			matched = append(matched, rec)
		}
	}

	affected := 0
	for _, rec := range matched {
		if err := store.Remove(rec); err != nil {
			return nil, err
		}
		affected++
	}

	return &Result{
		RowsAffected: affected,
		Message:      fmt.Sprintf("DELETE %d", affected),
	}, nil
}

// Helper functions

func (e *Executor) lookupStore(tableName string) (*recordcache.Store, error) {
	store, ok := e.registry.Get(tableName)
	if !ok {
		return nil, fmt.Errorf("table %q not bound", tableName)
	}
	return store, nil
}

// candidateRecords narrows the scanned set through the store's query path,
// which serves simple equalities from a secondary index when one exists.
func (e *Executor) candidateRecords(store *recordcache.Store, where *sqlparser.Where) []recordcache.Record {
	if where != nil {
		if cmp, ok := where.Expr.(*sqlparser.ComparisonExpr); ok && cmp.Operator == "=" {
			if col, ok := cmp.Left.(*sqlparser.ColName); ok {
				if val := evalExpr(cmp.Right); val != nil {
					return store.Query().Where(col.Name.String(), fmt.Sprintf("%v", val)).All()
				}
			}
		}
	}
	return store.Records()
}

// recordColumns derives SELECT * column names from the first canonical
// record, sorted for a stable order.
func recordColumns(store *recordcache.Store) []string {
	records := store.Records()
	if len(records) == 0 {
		return nil
	}

	columns := make([]string, 0, len(records[0]))
	for name := range records[0] {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

func getTableName(expr sqlparser.TableExpr) (string, error) {
	switch t := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		if tbl, ok := t.Expr.(sqlparser.TableName); ok {
			return tbl.Name.String(), nil
		}
	}
	return "", fmt.Errorf("could not determine table name")
}

func evalExpr(expr sqlparser.Expr) interface{} {
	switch e := expr.(type) {
	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.StrVal:
			return string(e.Val)
		case sqlparser.IntVal:
			return string(e.Val)
		case sqlparser.FloatVal:
			return string(e.Val)
		}
	case *sqlparser.NullVal:
		return nil
	case *sqlparser.FuncExpr:
		// Handle gen_random_uuid7()
		if strings.ToLower(e.Name.String()) == "gen_random_uuid7" {
			return recordcache.NewID()
		}
	}
	return nil
}

func matchesWhere(rec recordcache.Record, expr sqlparser.Expr) bool {
	switch e := expr.(type) {
	case *sqlparser.ComparisonExpr:
		left := getColumnValue(rec, e.Left)
		right := evalExpr(e.Right)

		switch e.Operator {
		case "=":
			return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
		case "!=", "<>":
			return fmt.Sprintf("%v", left) != fmt.Sprintf("%v", right)
		}
	case *sqlparser.AndExpr:
		return matchesWhere(rec, e.Left) && matchesWhere(rec, e.Right)
	case *sqlparser.OrExpr:
		return matchesWhere(rec, e.Left) || matchesWhere(rec, e.Right)
	}
	return true
}

func getColumnValue(rec recordcache.Record, expr sqlparser.Expr) interface{} {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		return rec[e.Name.String()]
	}
	return nil
}
