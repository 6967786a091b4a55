package fs

import "fmt"

// TableConfig is the configuration collaborator's per-table input
// (spec.md §6, "configuration interface"): field names, optional SQL
// overrides, the read-only flag, and optional uid/gid overrides. The
// `default` binding in a config file supplies these before a table's own
// section overrides them; internal/config performs that merge before
// handing a TableConfig to newTableBinding.
type TableConfig struct {
	TableName         string
	IDField           string
	NameField         string
	LengthField       string
	DataField         string
	CreatedDateField  string
	ModifiedDateField string

	DataQuery   string
	CreateQuery string
	UpdateQuery string
	DeleteQuery string

	ReadOnly bool
	UID, GID uint32
}

// tableBinding is the table binding component (§4.C): per-table field
// names and the SQL templates derived from them. Bindings are immutable
// after construction; files hold their table directory's inode and look
// the binding up on demand through the registry's inode-to-name map.
type tableBinding struct {
	tableName string

	idField      string
	nameField    string
	lengthField  string
	dataField    string
	createdField string // empty if not configured
	modifiedField string // empty if not configured

	readOnly bool
	uid, gid uint32

	listingQuery string // required, no generic default

	positionalReadQuery string
	overlayUpdateQuery  string
	truncateQuery       string
	insertBlankQuery    string
	deleteQuery         string
	renameQuery         string
}

// newTableBinding synthesises the default SQL templates from the field
// names (§4.2), then lets cfg's explicit overrides win. cfg.DataQuery is
// mandatory: there is no generic listing default since arbitrary column
// projections are expected.
func newTableBinding(name string, cfg TableConfig) (*tableBinding, error) {
	if cfg.DataQuery == "" {
		return nil, fmt.Errorf("pgfs: table %q has no data_query configured", name)
	}

	tb := &tableBinding{
		tableName:     cfg.TableName,
		idField:       cfg.IDField,
		nameField:     cfg.NameField,
		lengthField:   cfg.LengthField,
		dataField:     cfg.DataField,
		createdField:  cfg.CreatedDateField,
		modifiedField: cfg.ModifiedDateField,
		readOnly:      cfg.ReadOnly,
		uid:           cfg.UID,
		gid:           cfg.GID,
		listingQuery:  cfg.DataQuery,
	}

	tb.positionalReadQuery = fmt.Sprintf(
		"select substring(%s, $2, $3) from %s where %s = $1",
		tb.dataField, tb.tableName, tb.idField,
	)
	tb.overlayUpdateQuery = fmt.Sprintf(
		"update %s set %s = coalesce(overlay(%s placing $1 from $2 for $3), $1) where %s = $4",
		tb.tableName, tb.dataField, tb.dataField, tb.idField,
	)
	tb.truncateQuery = fmt.Sprintf(
		"update %s set %s = substring(%s, 1, $1) where %s = $2",
		tb.tableName, tb.dataField, tb.dataField, tb.idField,
	)
	tb.insertBlankQuery = fmt.Sprintf(
		"insert into %s (%s) values ($1) returning %s",
		tb.tableName, tb.nameField, tb.idField,
	)
	tb.deleteQuery = fmt.Sprintf("delete from %s where %s = $1", tb.tableName, tb.idField)
	tb.renameQuery = fmt.Sprintf(
		"update %s set %s = $1 where %s = $2",
		tb.tableName, tb.nameField, tb.idField,
	)

	if cfg.UpdateQuery != "" {
		tb.overlayUpdateQuery = cfg.UpdateQuery
	}
	if cfg.DeleteQuery != "" {
		tb.deleteQuery = cfg.DeleteQuery
	}
	if cfg.CreateQuery != "" {
		tb.insertBlankQuery = cfg.CreateQuery
	}

	return tb, nil
}

// timestampQuery returns the update template for a configured created or
// modified column. ok is false if the table has no such column.
func (tb *tableBinding) timestampQuery(column string) (query string, ok bool) {
	if column == "" {
		return "", false
	}
	return fmt.Sprintf("update %s set %s = $1 where %s = $2", tb.tableName, column, tb.idField), true
}
