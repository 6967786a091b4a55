package fs

import "testing"

func TestNewTableBindingRequiresDataQuery(t *testing.T) {
	_, err := newTableBinding("documents", TableConfig{TableName: "documents"})
	if err == nil {
		t.Fatal("newTableBinding with no DataQuery succeeded, want error")
	}
}

func TestNewTableBindingSynthesizesDefaults(t *testing.T) {
	cfg := TableConfig{
		TableName:   "documents",
		IDField:     "id",
		NameField:   "name",
		LengthField: "length",
		DataField:   "data",
		DataQuery:   "select id, name, length from documents",
	}
	tb, err := newTableBinding("documents", cfg)
	if err != nil {
		t.Fatalf("newTableBinding: %v", err)
	}

	wantRead := "select substring(data, $2, $3) from documents where id = $1"
	if tb.positionalReadQuery != wantRead {
		t.Errorf("positionalReadQuery = %q, want %q", tb.positionalReadQuery, wantRead)
	}

	wantOverlay := "update documents set data = coalesce(overlay(data placing $1 from $2 for $3), $1) where id = $4"
	if tb.overlayUpdateQuery != wantOverlay {
		t.Errorf("overlayUpdateQuery = %q, want %q", tb.overlayUpdateQuery, wantOverlay)
	}

	wantTruncate := "update documents set data = substring(data, 1, $1) where id = $2"
	if tb.truncateQuery != wantTruncate {
		t.Errorf("truncateQuery = %q, want %q", tb.truncateQuery, wantTruncate)
	}

	wantInsert := "insert into documents (name) values ($1) returning id"
	if tb.insertBlankQuery != wantInsert {
		t.Errorf("insertBlankQuery = %q, want %q", tb.insertBlankQuery, wantInsert)
	}

	wantDelete := "delete from documents where id = $1"
	if tb.deleteQuery != wantDelete {
		t.Errorf("deleteQuery = %q, want %q", tb.deleteQuery, wantDelete)
	}

	wantRename := "update documents set name = $1 where id = $2"
	if tb.renameQuery != wantRename {
		t.Errorf("renameQuery = %q, want %q", tb.renameQuery, wantRename)
	}
}

func TestNewTableBindingOverridesWin(t *testing.T) {
	cfg := TableConfig{
		TableName:   "documents",
		IDField:     "id",
		NameField:   "name",
		DataField:   "data",
		DataQuery:   "select id, name, length from documents",
		UpdateQuery: "custom update",
		DeleteQuery: "custom delete",
		CreateQuery: "custom create",
	}
	tb, err := newTableBinding("documents", cfg)
	if err != nil {
		t.Fatalf("newTableBinding: %v", err)
	}
	if tb.overlayUpdateQuery != "custom update" {
		t.Errorf("overlayUpdateQuery = %q, want override", tb.overlayUpdateQuery)
	}
	if tb.deleteQuery != "custom delete" {
		t.Errorf("deleteQuery = %q, want override", tb.deleteQuery)
	}
	if tb.insertBlankQuery != "custom create" {
		t.Errorf("insertBlankQuery = %q, want override", tb.insertBlankQuery)
	}
}

func TestTimestampQueryRequiresConfiguredColumn(t *testing.T) {
	tb := &tableBinding{tableName: "documents", idField: "id"}
	if _, ok := tb.timestampQuery(""); ok {
		t.Fatal("timestampQuery(\"\") = ok, want false")
	}

	query, ok := tb.timestampQuery("modified_at")
	if !ok {
		t.Fatal("timestampQuery(modified_at) = !ok, want ok")
	}
	want := "update documents set modified_at = $1 where id = $2"
	if query != want {
		t.Errorf("timestampQuery = %q, want %q", query, want)
	}
}
