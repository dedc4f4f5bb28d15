package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/ports"
	"github.com/ObserveRTC/connector-sub000/internal/taskgraph"
)

var (
	ErrDatabaseMissing = errors.New("sink: database does not exist")
	ErrTableMissing    = errors.New("sink: table does not exist")
)

// ProvisionConfig gates schema provisioning. DeleteTableIfExists is a
// table name glob, or "all".
type ProvisionConfig struct {
	SchemaCheckEnabled      bool   `yaml:"schema_check_enabled"`
	Database                string `yaml:"database"`
	CreateDatabaseIfMissing bool   `yaml:"create_database_if_missing"`
	CreateTableIfMissing    bool   `yaml:"create_table_if_missing"`
	DeleteTableIfExists     string `yaml:"delete_table_if_exists"`
}

func (c ProvisionConfig) deletes(table string) bool {
	switch c.DeleteTableIfExists {
	case "":
		return false
	case "all":
		return true
	}
	ok, err := path.Match(c.DeleteTableIfExists, table)
	return err == nil && ok
}

// Provision ensures the database and every table exist before the first
// write: ensure database, then per table an optional drop followed by
// ensure table. The first failing task stops the remaining ones.
func Provision(ctx context.Context, p ports.Provisioner, tables []ports.TableSchema, cfg ProvisionConfig, log logrus.FieldLogger) error {
	if !cfg.SchemaCheckEnabled {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	g := taskgraph.New()

	database := taskgraph.NewTask("ensure database", func(ctx context.Context) error {
		ok, err := p.DatabaseExists(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !cfg.CreateDatabaseIfMissing {
			return fmt.Errorf("%w: %s", ErrDatabaseMissing, cfg.Database)
		}
		log.WithField("database", cfg.Database).Info("creating database")
		return p.CreateDatabase(ctx)
	})
	if err := g.Add(database); err != nil {
		return err
	}

	for _, t := range tables {
		before := database
		if cfg.deletes(t.Name) {
			drop := taskgraph.NewTask("drop table "+t.Name, func(ctx context.Context) error {
				log.WithField("table", t.Name).Warn("dropping table")
				return p.DropTable(ctx, t)
			})
			if err := g.Add(drop, database); err != nil {
				return err
			}
			before = drop
		}
		ensure := taskgraph.NewTask("ensure table "+t.Name, func(ctx context.Context) error {
			ok, err := p.TableExists(ctx, t)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			if !cfg.CreateTableIfMissing {
				return fmt.Errorf("%w: %s", ErrTableMissing, t.Name)
			}
			log.WithFields(logrus.Fields{"table": t.Name, "kind": t.Kind.String()}).Info("creating table")
			return p.CreateTable(ctx, t)
		})
		if err := g.Add(ensure, before); err != nil {
			return err
		}
	}

	if err := g.Run(ctx); err != nil {
		log.WithError(err).Error("schema provisioning failed")
		return err
	}
	return nil
}

// SQLProvisioner implements ports.Provisioner over database/sql. The
// database checks run on the admin connection and the table operations on
// the target one, which may only be opened once the database exists.
type SQLProvisioner struct {
	admin    *sql.DB
	open     func(context.Context) (*sql.DB, error)
	db       *sql.DB
	dialect  Dialect
	database string
}

// NewSQLProvisioner provisions over one connection that already reaches
// the configured database.
func NewSQLProvisioner(db *sql.DB, d Dialect, database string) *SQLProvisioner {
	return &SQLProvisioner{admin: db, db: db, dialect: d, database: database}
}

// NewMaintenanceProvisioner checks and creates database over admin, and
// opens the target connection with open before the first table operation.
func NewMaintenanceProvisioner(admin *sql.DB, open func(context.Context) (*sql.DB, error), d Dialect, database string) *SQLProvisioner {
	return &SQLProvisioner{admin: admin, open: open, dialect: d, database: database}
}

// DB returns the target connection, opening it on first use.
func (p *SQLProvisioner) DB(ctx context.Context) (*sql.DB, error) {
	if p.db != nil {
		return p.db, nil
	}
	if p.open == nil {
		return nil, fmt.Errorf("%w: no target connection", ErrDatabaseMissing)
	}
	db, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	p.db = db
	return db, nil
}

func exists(ctx context.Context, db *sql.DB, query string, args ...any) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// DatabaseExists is always true for sqlite, whose database is the file.
func (p *SQLProvisioner) DatabaseExists(ctx context.Context) (bool, error) {
	switch p.dialect {
	case Postgres:
		return exists(ctx, p.admin, "SELECT 1 FROM pg_database WHERE datname = $1", p.database)
	case MySQL:
		return exists(ctx, p.admin, "SELECT 1 FROM information_schema.schemata WHERE schema_name = ?", p.database)
	}
	return true, nil
}

func (p *SQLProvisioner) CreateDatabase(ctx context.Context) error {
	if p.dialect == SQLite {
		return nil
	}
	if p.database == "" {
		return fmt.Errorf("%w: no database name configured", ErrDatabaseMissing)
	}
	_, err := p.admin.ExecContext(ctx, "CREATE DATABASE "+p.dialect.Quote(p.database))
	return err
}

func (p *SQLProvisioner) TableExists(ctx context.Context, t ports.TableSchema) (bool, error) {
	db, err := p.DB(ctx)
	if err != nil {
		return false, err
	}
	switch p.dialect {
	case Postgres:
		return exists(ctx, db, "SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1", t.Name)
	case MySQL:
		return exists(ctx, db, "SELECT 1 FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?", p.database, t.Name)
	}
	return exists(ctx, db, "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", t.Name)
}

func (p *SQLProvisioner) CreateTable(ctx context.Context, t ports.TableSchema) error {
	db, err := p.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, CreateTableDDL(p.dialect, t))
	return err
}

func (p *SQLProvisioner) DropTable(ctx context.Context, t ports.TableSchema) error {
	db, err := p.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+p.dialect.Quote(t.Name))
	return err
}

// CreateTableDDL renders the CREATE TABLE statement of t.
func CreateTableDDL(d Dialect, t ports.TableSchema) string {
	var defs []string
	if t.AutoIncrementKey != "" {
		defs = append(defs, d.Quote(t.AutoIncrementKey)+" "+autoIncrement(d, t))
	}
	for _, c := range t.Columns {
		def := d.Quote(c.Name) + " " + c.Type
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if pk := primaryKey(d, t); pk != "" {
		defs = append(defs, pk)
	}
	return "CREATE TABLE IF NOT EXISTS " + d.Quote(t.Name) + " (" + strings.Join(defs, ", ") + ")"
}

func autoIncrement(d Dialect, t ports.TableSchema) string {
	switch d {
	case Postgres:
		return "BIGSERIAL"
	case MySQL:
		return "BIGINT NOT NULL AUTO_INCREMENT"
	}
	// sqlite only auto-increments an inline INTEGER PRIMARY KEY
	if len(t.PrimaryKey) == 0 || (len(t.PrimaryKey) == 1 && t.PrimaryKey[0] == t.AutoIncrementKey) {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "INTEGER"
}

func primaryKey(d Dialect, t ports.TableSchema) string {
	keys := t.PrimaryKey
	if len(keys) == 0 && t.AutoIncrementKey != "" && d != SQLite {
		keys = []string{t.AutoIncrementKey}
	}
	if d == SQLite && t.AutoIncrementKey != "" && strings.Contains(autoIncrement(d, t), "PRIMARY KEY") {
		return ""
	}
	if len(keys) == 0 {
		return ""
	}
	types := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		types[c.Name] = c.Type
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = d.Quote(k)
		if d == MySQL && (types[k] == "TEXT" || types[k] == "LONGBLOB") {
			parts[i] += "(255)"
		}
	}
	return "PRIMARY KEY (" + strings.Join(parts, ", ") + ")"
}

var _ ports.Provisioner = (*SQLProvisioner)(nil)
