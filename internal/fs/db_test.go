package fs

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockDispatcher(t *testing.T) (*dispatcher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &dispatcher{db: db}, mock
}

func quote(q string) string {
	return regexp.QuoteMeta(q)
}

func TestDispatcherList(t *testing.T) {
	d, mock := newMockDispatcher(t)
	tb := &tableBinding{
		tableName:    "documents",
		idField:      "id",
		nameField:    "name",
		createdField: "created_at",
		listingQuery: "select id, name, length from documents",
	}

	rows := sqlmock.NewRows([]string{"id", "name", "length"}).
		AddRow(int32(1), "a.txt", int32(3)).
		AddRow(int32(2), "b.txt", nil)
	mock.ExpectQuery(quote(tb.listingQuery)).WillReturnRows(rows)

	got, err := d.list(context.Background(), tb)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].id != 1 || got[0].name != "a.txt" || got[0].length != 3 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].length != 0 {
		t.Errorf("got[1].length = %d, want 0 for null length", got[1].length)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatcherReadReturnsEmptyOnNoRows(t *testing.T) {
	d, mock := newMockDispatcher(t)
	tb := &tableBinding{tableName: "documents", idField: "id", positionalReadQuery: "select substring(data, $2, $3) from documents where id = $1"}

	mock.ExpectQuery(quote(tb.positionalReadQuery)).
		WithArgs(int32(1), int64(1), int64(10)).
		WillReturnError(sql.ErrNoRows)

	data, err := d.read(context.Background(), tb, 1, 1, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("data = %q, want empty", data)
	}
}

func TestDispatcherReadReturnsBytes(t *testing.T) {
	d, mock := newMockDispatcher(t)
	tb := &tableBinding{tableName: "documents", idField: "id", positionalReadQuery: "select substring(data, $2, $3) from documents where id = $1"}

	rows := sqlmock.NewRows([]string{"substring"}).AddRow([]byte("hello"))
	mock.ExpectQuery(quote(tb.positionalReadQuery)).
		WithArgs(int32(1), int64(1), int64(5)).
		WillReturnRows(rows)

	data, err := d.read(context.Background(), tb, 1, 1, 5)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want hello", data)
	}
}

func TestDispatcherOverlay(t *testing.T) {
	d, mock := newMockDispatcher(t)
	tb := &tableBinding{
		tableName:          "documents",
		overlayUpdateQuery: "update documents set data = coalesce(overlay(data placing $1 from $2 for $3), $1) where id = $4",
	}
	mock.ExpectExec(quote(tb.overlayUpdateQuery)).
		WithArgs([]byte("abc"), int64(1), int64(3), int32(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := d.overlay(context.Background(), tb, 7, 1, []byte("abc")); err != nil {
		t.Fatalf("overlay: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatcherInsertBlankReturnsID(t *testing.T) {
	d, mock := newMockDispatcher(t)
	tb := &tableBinding{tableName: "documents", insertBlankQuery: "insert into documents (name) values ($1) returning id"}

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int32(42))
	mock.ExpectQuery(quote(tb.insertBlankQuery)).WithArgs("new.txt").WillReturnRows(rows)

	id, err := d.insertBlank(context.Background(), tb, "new.txt")
	if err != nil {
		t.Fatalf("insertBlank: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

func TestDispatcherDeletePropagatesError(t *testing.T) {
	d, mock := newMockDispatcher(t)
	tb := &tableBinding{tableName: "documents", deleteQuery: "delete from documents where id = $1"}

	mock.ExpectExec(quote(tb.deleteQuery)).WithArgs(int32(9)).WillReturnError(errors.New("boom"))

	if err := d.delete(context.Background(), tb, 9); err == nil {
		t.Fatal("delete succeeded, want error")
	}
}

func TestDispatcherUpdateTimestampRequiresConfiguredColumn(t *testing.T) {
	d, _ := newMockDispatcher(t)
	tb := &tableBinding{tableName: "documents", idField: "id"}

	if err := d.updateTimestamp(context.Background(), tb, "", 1, time.Now()); err == nil {
		t.Fatal("updateTimestamp with no column succeeded, want error")
	}
}
