package fs

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/xerrors"
)

// dispatcher is the SQL dispatcher (§4.D): formats and executes
// parameterised queries against the database/sql handle, decoding the
// typed columns the rest of the filesystem cares about. Failures surface
// as a plain error; fs.go translates them to the error taxonomy at the
// boundary (spec.md §7) rather than letting a SQL error type leak past
// this file.
type dispatcher struct {
	db *sql.DB
}

// openDispatcher opens a connection pool against dsn and verifies
// connectivity, grounded on the pack's sql.Open("pgx", dsn) + PingContext
// pattern for wiring jackc/pgx through database/sql.
func openDispatcher(dsn string) (*dispatcher, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, xerrors.Errorf("pgfs: opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Errorf("pgfs: connecting to database: %w", err)
	}

	return &dispatcher{db: db}, nil
}

func (d *dispatcher) close() error {
	return d.db.Close()
}

// listedRow is one row of a table's listing query (§4.D typed extraction).
type listedRow struct {
	id      int32
	name    string
	length  int32
	created sql.NullTime
	modified sql.NullTime
}

// list runs a table's listing query and decodes every row. The created
// and modified columns are read positionally, after id/name/length, only
// when the table binding configured them and the query's result has a
// column of that name.
func (d *dispatcher) list(ctx context.Context, tb *tableBinding) ([]listedRow, error) {
	rows, err := d.db.QueryContext(ctx, tb.listingQuery)
	if err != nil {
		return nil, xerrors.Errorf("pgfs: listing query for %s: %w", tb.tableName, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, xerrors.Errorf("pgfs: listing query columns for %s: %w", tb.tableName, err)
	}
	hasCreated := tb.createdField != "" && containsColumn(cols, tb.createdField)
	hasModified := tb.modifiedField != "" && containsColumn(cols, tb.modifiedField)

	var out []listedRow
	for rows.Next() {
		var row listedRow
		var length sql.NullInt32

		scanArgs := []interface{}{&row.id, &row.name, &length}
		if hasCreated {
			scanArgs = append(scanArgs, &row.created)
		}
		if hasModified {
			scanArgs = append(scanArgs, &row.modified)
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, xerrors.Errorf("pgfs: scanning row for %s: %w", tb.tableName, err)
		}
		if length.Valid {
			row.length = length.Int32
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Errorf("pgfs: iterating rows for %s: %w", tb.tableName, err)
	}
	return out, nil
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// read executes the positional read query, returning an empty slice
// (never nil) for a null payload.
func (d *dispatcher) read(ctx context.Context, tb *tableBinding, id int32, start, length int64) ([]byte, error) {
	var data []byte
	row := d.db.QueryRowContext(ctx, tb.positionalReadQuery, id, start, length)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return []byte{}, nil
		}
		return nil, xerrors.Errorf("pgfs: positional read for %s/%d: %w", tb.tableName, id, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// overlay executes the overlay update query for a pending write cache
// region.
func (d *dispatcher) overlay(ctx context.Context, tb *tableBinding, id int32, offset int64, payload []byte) error {
	_, err := d.db.ExecContext(ctx, tb.overlayUpdateQuery, payload, offset, int64(len(payload)), id)
	if err != nil {
		return xerrors.Errorf("pgfs: overlay update for %s/%d: %w", tb.tableName, id, err)
	}
	return nil
}

// truncate executes the truncate query.
func (d *dispatcher) truncate(ctx context.Context, tb *tableBinding, id int32, size int64) error {
	_, err := d.db.ExecContext(ctx, tb.truncateQuery, size, id)
	if err != nil {
		return xerrors.Errorf("pgfs: truncate for %s/%d: %w", tb.tableName, id, err)
	}
	return nil
}

// insertBlank executes the insert-blank query and returns the new row id.
func (d *dispatcher) insertBlank(ctx context.Context, tb *tableBinding, name string) (int32, error) {
	var id int32
	row := d.db.QueryRowContext(ctx, tb.insertBlankQuery, name)
	if err := row.Scan(&id); err != nil {
		return 0, xerrors.Errorf("pgfs: insert-blank for %s/%q: %w", tb.tableName, name, err)
	}
	return id, nil
}

// delete executes the delete query.
func (d *dispatcher) delete(ctx context.Context, tb *tableBinding, id int32) error {
	_, err := d.db.ExecContext(ctx, tb.deleteQuery, id)
	if err != nil {
		return xerrors.Errorf("pgfs: delete for %s/%d: %w", tb.tableName, id, err)
	}
	return nil
}

// rename executes the name-column update query.
func (d *dispatcher) rename(ctx context.Context, tb *tableBinding, id int32, newName string) error {
	_, err := d.db.ExecContext(ctx, tb.renameQuery, newName, id)
	if err != nil {
		return xerrors.Errorf("pgfs: rename for %s/%d: %w", tb.tableName, id, err)
	}
	return nil
}

// updateTimestamp executes a created/modified column update.
func (d *dispatcher) updateTimestamp(ctx context.Context, tb *tableBinding, column string, id int32, value time.Time) error {
	query, ok := tb.timestampQuery(column)
	if !ok {
		return xerrors.Errorf("pgfs: table %s has no timestamp column configured", tb.tableName)
	}
	_, err := d.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return xerrors.Errorf("pgfs: timestamp update for %s/%d: %w", tb.tableName, id, err)
	}
	return nil
}
