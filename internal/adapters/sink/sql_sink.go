package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
	"github.com/ObserveRTC/connector-sub000/internal/rowadapter"
)

var ErrInvalidTableConfig = errors.New("sink: invalid table config")

// TableConfig names the destination table of one record kind.
type TableConfig struct {
	TableName            string   `yaml:"table_name"`
	PrimaryKeyColumns    []string `yaml:"primary_key_columns"`
	AutoIncrementKeyName string   `yaml:"auto_increment_key_name"`
}

// SQLConfig configures a SQL sink. Tables are keyed by record type name;
// kinds without an entry use their lower-cased type name as table.
type SQLConfig struct {
	Dialect string                 `yaml:"dialect"`
	DSN     string                 `yaml:"dsn"`
	Kinds   []string               `yaml:"kinds"`
	Tables  map[string]TableConfig `yaml:"tables"`
	Adapter rowadapter.Config      `yaml:"adapter"`

	Provision ProvisionConfig `yaml:"provision"`
}

type sqlTable struct {
	schema  ports.TableSchema
	adapter *rowadapter.Adapter[string]
	columns []string
	prefix  string
}

// SQLSink writes each batch with one multi-row INSERT per record kind.
type SQLSink struct {
	name    string
	db      *sql.DB
	dialect Dialect
	log     logrus.FieldLogger
	tables  map[domain.RecordType]*sqlTable
	order   []domain.RecordType
}

// NewSQLSink builds the row adapters and table schemas of every configured
// kind. It does not touch the database.
func NewSQLSink(name string, db *sql.DB, d Dialect, cfg SQLConfig, log logrus.FieldLogger) (*SQLSink, error) {
	types, err := rowadapter.SQLTypes(string(d))
	if err != nil {
		return nil, err
	}
	extra, err := rowadapter.OptionsFromConfig(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	kinds, err := kindsOf(cfg.Kinds)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &SQLSink{
		name:    name,
		db:      db,
		dialect: d,
		log:     log.WithField("sink", name),
		tables:  make(map[domain.RecordType]*sqlTable, len(kinds)),
	}
	for _, kind := range kinds {
		t, err := s.buildTable(kind, cfg.Tables[kind.String()], types, extra)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %s: %w", name, kind, err)
		}
		s.tables[kind] = t
		s.order = append(s.order, kind)
	}
	return s, nil
}

var openDB = Open

// OpenSQLSink builds the sink of cfg, connects and provisions its schema.
// With schema checks on, the database is checked and created over a
// maintenance connection before the configured DSN is opened.
func OpenSQLSink(ctx context.Context, name string, cfg SQLConfig, log logrus.FieldLogger) (*SQLSink, error) {
	d, err := ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLSink(name, nil, d, cfg, log)
	if err != nil {
		return nil, err
	}
	plan, err := planConnect(d, cfg.DSN, cfg.Provision)
	if err != nil {
		return nil, err
	}

	if plan.admin == "" {
		db, err := openDB(ctx, d, plan.target)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", d, err)
		}
		p := NewSQLProvisioner(db, d, cfg.Provision.Database)
		if err := Provision(ctx, p, s.Tables(), cfg.Provision, s.log); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.db = db
		return s, nil
	}

	admin, err := openDB(ctx, d, plan.admin)
	if err != nil {
		return nil, fmt.Errorf("open %s maintenance database: %w", d, err)
	}
	defer admin.Close()

	open := func(ctx context.Context) (*sql.DB, error) {
		db, err := openDB(ctx, d, plan.target)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", d, err)
		}
		return db, nil
	}
	p := NewMaintenanceProvisioner(admin, open, d, plan.database)
	prov := cfg.Provision
	prov.Database = plan.database
	if err := Provision(ctx, p, s.Tables(), prov, s.log); err != nil {
		if p.db != nil {
			_ = p.db.Close()
		}
		return nil, err
	}
	db, err := p.DB(ctx)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

func kindsOf(names []string) ([]domain.RecordType, error) {
	if len(names) == 0 {
		return domain.RecordTypes(), nil
	}
	out := make([]domain.RecordType, 0, len(names))
	for _, n := range names {
		k, err := domain.ParseRecordType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func (s *SQLSink) buildTable(kind domain.RecordType, tc TableConfig, types rowadapter.TypeTable[string], extra rowadapter.Options[string]) (*sqlTable, error) {
	root, err := domain.Schema(kind)
	if err != nil {
		return nil, err
	}
	opts := rowadapter.Options[string]{
		Flatten: map[string]rowadapter.Options[string]{domain.PayloadField: {}},
	}.Merge(extra)
	adapter, err := rowadapter.Build(root, types, opts)
	if err != nil {
		return nil, err
	}

	name := tc.TableName
	if name == "" {
		name = strings.ToLower(kind.String())
	}
	ts := ports.TableSchema{
		Kind:             kind,
		Name:             name,
		PrimaryKey:       lowerAll(tc.PrimaryKeyColumns),
		AutoIncrementKey: strings.ToLower(tc.AutoIncrementKeyName),
	}
	known := map[string]bool{}
	columns := make([]string, 0, len(adapter.Columns()))
	quoted := make([]string, 0, len(adapter.Columns()))
	for _, c := range adapter.Columns() {
		ts.Columns = append(ts.Columns, ports.Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable})
		columns = append(columns, c.Name)
		quoted = append(quoted, s.dialect.Quote(c.Name))
		known[c.Name] = true
	}
	if ts.AutoIncrementKey != "" && known[ts.AutoIncrementKey] {
		return nil, fmt.Errorf("%w: auto increment key %q collides with a column", ErrInvalidTableConfig, ts.AutoIncrementKey)
	}
	for _, k := range ts.PrimaryKey {
		if !known[k] && k != ts.AutoIncrementKey {
			return nil, fmt.Errorf("%w: primary key column %q does not exist", ErrInvalidTableConfig, k)
		}
	}

	prefix := "INSERT INTO " + s.dialect.Quote(name) + " (" + strings.Join(quoted, ", ") + ") VALUES "
	return &sqlTable{schema: ts, adapter: adapter, columns: columns, prefix: prefix}, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func (s *SQLSink) Name() string {
	return s.name
}

// DB is the handle the sink writes through.
func (s *SQLSink) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// Tables returns the destination schema of every configured kind.
func (s *SQLSink) Tables() []ports.TableSchema {
	out := make([]ports.TableSchema, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.tables[k].schema)
	}
	return out
}

// WriteBatch groups records by kind in order of first appearance. A group
// that fails to insert is logged and skipped; a connectivity failure is
// returned.
func (s *SQLSink) WriteBatch(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	groups := make(map[domain.RecordType][]*domain.Record)
	var order []domain.RecordType
	for _, r := range records {
		if _, ok := groups[r.Type]; !ok {
			order = append(order, r.Type)
		}
		groups[r.Type] = append(groups[r.Type], r)
	}

	for _, kind := range order {
		t, ok := s.tables[kind]
		if !ok {
			s.log.WithField("kind", kind.String()).WithField("records", len(groups[kind])).Debug("no table for kind, records skipped")
			continue
		}
		if err := s.insert(ctx, t, groups[kind]); err != nil {
			if IsConnectivityError(err) {
				return err
			}
			s.log.WithFields(logrus.Fields{
				"kind":    kind.String(),
				"table":   t.schema.Name,
				"records": len(groups[kind]),
			}).WithError(err).Error("insert failed, group skipped")
		}
	}
	return nil
}

func (s *SQLSink) insert(ctx context.Context, t *sqlTable, records []*domain.Record) error {
	rowsPerStmt := max(1, s.dialect.maxArgs()/len(t.columns))
	args := make([]any, 0, min(len(records), rowsPerStmt)*len(t.columns))
	var b strings.Builder
	rows := 0

	flush := func() error {
		if rows == 0 {
			return nil
		}
		_, err := s.db.ExecContext(ctx, b.String(), args...)
		b.Reset()
		args = args[:0]
		rows = 0
		return err
	}

	for _, r := range records {
		entry, err := t.adapter.Apply(r)
		if err != nil {
			recordFields(s.log, r).WithError(err).Warn("record cannot be projected, skipped")
			continue
		}
		if rows == 0 {
			b.WriteString(t.prefix)
		} else {
			b.WriteString(",")
		}
		b.WriteString("(")
		for i, c := range t.columns {
			if i > 0 {
				b.WriteString(",")
			}
			args = append(args, entry[c])
			b.WriteString(s.dialect.Placeholder(len(args)))
		}
		b.WriteString(")")
		rows++
		if rows == rowsPerStmt {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func recordFields(log logrus.FieldLogger, r *domain.Record) logrus.FieldLogger {
	callID, pcID := domain.CallAndPeerConnection(r)
	return log.WithFields(logrus.Fields{"kind": r.Type.String(), "call_id": callID, "pc_id": pcID})
}

var _ ports.Sink = (*SQLSink)(nil)
