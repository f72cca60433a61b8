package rowset

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openSeededDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, blob_col BLOB, null_col TEXT)",
		"INSERT INTO items VALUES (1, 'one', X'0102', NULL)",
		"INSERT INTO items VALUES (2, 'two', X'0304', NULL)",
		"INSERT INTO items VALUES (3, 'three', X'0506', NULL)",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q failed: %v", stmt, err)
		}
	}
	return db
}

func load(t *testing.T, db *sql.DB, query string) *Rows {
	t.Helper()
	rows, err := db.Query(query)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	rs, err := Load(rows)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return rs
}

func TestLoadBuffersAllRows(t *testing.T) {
	db := openSeededDB(t)
	rs := load(t, db, "SELECT id, name FROM items ORDER BY id")
	if rs == nil {
		t.Fatal("expected rows")
	}
	defer rs.Close()

	if got := rs.RowCount(); got != 3 {
		t.Fatalf("expected 3 rows, got %d", got)
	}

	// Positioned on the first row before any Next call.
	want := []struct {
		id   int64
		name string
	}{{1, "one"}, {2, "two"}, {3, "three"}}

	i := 0
	for {
		if rs.Int64("id") != want[i].id || rs.String("name") != want[i].name {
			t.Fatalf("row %d: got id=%d name=%q", i, rs.Int64("id"), rs.String("name"))
		}
		i++
		if !rs.Next() {
			break
		}
	}
	if i != 3 {
		t.Fatalf("iterated %d rows, expected 3", i)
	}
}

func TestLoadEmptyResultIsNil(t *testing.T) {
	db := openSeededDB(t)
	rs := load(t, db, "SELECT id FROM items WHERE id > 100")
	if rs != nil {
		t.Fatalf("expected nil for empty result, got %d rows", rs.RowCount())
	}
}

func TestTypedAccessors(t *testing.T) {
	db := openSeededDB(t)
	rs := load(t, db, "SELECT id, name, blob_col, null_col FROM items WHERE id = 1")
	if rs == nil {
		t.Fatal("expected a row")
	}
	defer rs.Close()

	if got := rs.Int("id"); got != 1 {
		t.Fatalf("Int(id) = %d", got)
	}
	if got := rs.Int64("id"); got != 1 {
		t.Fatalf("Int64(id) = %d", got)
	}
	if got := rs.String("name"); got != "one" {
		t.Fatalf("String(name) = %q", got)
	}
	if got := rs.Bytes("blob_col"); len(got) != 2 || got[0] != 0x01 || got[1] != 0x02 {
		t.Fatalf("Bytes(blob_col) = %v", got)
	}
	if got := rs.String("null_col"); got != "" {
		t.Fatalf("String(null_col) = %q", got)
	}
	if got := rs.Bytes("null_col"); got != nil {
		t.Fatalf("Bytes(null_col) = %v", got)
	}
}

func TestUnknownColumnYieldsZeroValues(t *testing.T) {
	db := openSeededDB(t)
	rs := load(t, db, "SELECT id FROM items WHERE id = 1")
	if rs == nil {
		t.Fatal("expected a row")
	}
	defer rs.Close()

	if got := rs.Int64("missing"); got != 0 {
		t.Fatalf("Int64(missing) = %d", got)
	}
	if got := rs.String("missing"); got != "" {
		t.Fatalf("String(missing) = %q", got)
	}
	if got := rs.Bytes("missing"); got != nil {
		t.Fatalf("Bytes(missing) = %v", got)
	}
}

func TestColumnsPreserveOrder(t *testing.T) {
	db := openSeededDB(t)
	rs := load(t, db, "SELECT name, id FROM items WHERE id = 1")
	if rs == nil {
		t.Fatal("expected a row")
	}
	defer rs.Close()

	cols := rs.Columns()
	if len(cols) != 2 || cols[0] != "name" || cols[1] != "id" {
		t.Fatalf("unexpected columns %v", cols)
	}
}
