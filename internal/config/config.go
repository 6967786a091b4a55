// Package config loads the pgfs TOML configuration file: a database
// connection, a mountpoint, a `default` table of per-table defaults, and
// one section per exposed table directory. The merge semantics mirror
// original_source/src/config.rs's PgfsConfig::new.
package config

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"

	"github.com/paulpr0/pgfs/internal/fs"
)

const defaultMountpoint = "/tmp/pgfs"

var reservedSections = map[string]bool{
	"default":    true,
	"database":   true,
	"mountpoint": true,
}

// tableDefaults mirrors config.rs's TableConfig default values: bytea
// payload columns named id/length/data/name, no overrides, read-only.
type tableDefaults struct {
	idField      string
	lengthField  string
	dataField    string
	nameField    string
	dataQuery    string
	createQuery  string
	updateQuery  string
	deleteQuery  string
	readOnly     bool
	uid, gid     uint32
	createdField string
	modifiedField string
}

func newTableDefaults() tableDefaults {
	return tableDefaults{
		idField:     "id",
		lengthField: "length",
		dataField:   "data",
		nameField:   "name",
		readOnly:    true,
	}
}

// Load reads and parses the TOML configuration at path, returning the
// fs.Config ready to hand to fs.New.
func Load(path string) (*fs.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("pgfs: reading config %s: %w", path, err)
	}
	return fromSettings(v)
}

// LoadBytes parses raw TOML content, for tests.
func LoadBytes(data []byte) (*fs.Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("pgfs: parsing config: %w", err)
	}
	return fromSettings(v)
}

func fromSettings(v *viper.Viper) (*fs.Config, error) {
	cfg := &fs.Config{Mountpoint: defaultMountpoint}

	if v.IsSet("mountpoint") {
		cfg.Mountpoint = v.GetString("mountpoint")
	}

	if v.IsSet("database") {
		conn, err := connectionString(v)
		if err != nil {
			return nil, err
		}
		cfg.ConnectionString = conn
	}

	defaults := newTableDefaults()
	if v.IsSet("default") {
		applyOverrides(&defaults, v.Sub("default"))
	}

	for section := range v.AllSettings() {
		if reservedSections[section] {
			continue
		}
		sub := v.Sub(section)
		if sub == nil {
			continue
		}
		table := defaults
		applyOverrides(&table, sub)

		tableName := section
		if sub.IsSet("table_name") {
			tableName = sub.GetString("table_name")
		}

		cfg.Tables = append(cfg.Tables, fs.NamedTableConfig{
			Name: section,
			Config: fs.TableConfig{
				TableName:         tableName,
				IDField:           table.idField,
				NameField:         table.nameField,
				LengthField:       table.lengthField,
				DataField:         table.dataField,
				CreatedDateField:  table.createdField,
				ModifiedDateField: table.modifiedField,
				DataQuery:         table.dataQuery,
				CreateQuery:       table.createQuery,
				UpdateQuery:       table.updateQuery,
				DeleteQuery:       table.deleteQuery,
				ReadOnly:          table.readOnly,
				UID:               table.uid,
				GID:               table.gid,
			},
		})
	}

	return cfg, nil
}

// connectionString accepts either a bare string under [database] or a
// sub-table with database/user/pass keys, per config.rs.
func connectionString(v *viper.Viper) (string, error) {
	if s, ok := v.Get("database").(string); ok {
		return s, nil
	}
	sub := v.Sub("database")
	if sub == nil {
		return "", fmt.Errorf("pgfs: [database] must be a string or a table")
	}
	db := sub.GetString("database")
	user := sub.GetString("user")
	pass := sub.GetString("pass")
	return fmt.Sprintf("postgres://%s:%s@%s", user, pass, db), nil
}

func applyOverrides(t *tableDefaults, sub *viper.Viper) {
	if sub == nil {
		return
	}
	if sub.IsSet("id_field") {
		t.idField = sub.GetString("id_field")
	}
	if sub.IsSet("length_field") {
		t.lengthField = sub.GetString("length_field")
	}
	if sub.IsSet("data_field") {
		t.dataField = sub.GetString("data_field")
	}
	if sub.IsSet("name_field") {
		t.nameField = sub.GetString("name_field")
	}
	if sub.IsSet("data_query") {
		t.dataQuery = sub.GetString("data_query")
	}
	if sub.IsSet("create_query") {
		t.createQuery = sub.GetString("create_query")
	}
	if sub.IsSet("update_query") {
		t.updateQuery = sub.GetString("update_query")
	}
	if sub.IsSet("delete_query") {
		t.deleteQuery = sub.GetString("delete_query")
	}
	if sub.IsSet("read_only") {
		t.readOnly = sub.GetBool("read_only")
	}
	if sub.IsSet("uid") {
		t.uid = uint32(sub.GetInt("uid"))
	}
	if sub.IsSet("gid") {
		t.gid = uint32(sub.GetInt("gid"))
	}
	if sub.IsSet("created_date_field") {
		t.createdField = sub.GetString("created_date_field")
	}
	if sub.IsSet("modified_date_field") {
		t.modifiedField = sub.GetString("modified_date_field")
	}
}
