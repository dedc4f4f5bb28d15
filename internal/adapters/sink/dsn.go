package sink

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// maintenanceDatabase is the database an admin connection reaches before
// the configured one exists. MySQL connects without a default schema.
func maintenanceDatabase(d Dialect) string {
	if d == Postgres {
		return "postgres"
	}
	return ""
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// DatabaseName returns the database a DSN connects to, or "" when it names
// none.
func DatabaseName(d Dialect, dsn string) (string, error) {
	switch d {
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", err
		}
		return cfg.DBName, nil
	case Postgres:
		if isPostgresURL(dsn) {
			u, err := url.Parse(dsn)
			if err != nil {
				return "", err
			}
			return strings.TrimPrefix(u.Path, "/"), nil
		}
		return pgOptions(dsn)["dbname"], nil
	}
	return "", nil
}

// WithDatabase rewrites dsn to connect to database name.
func WithDatabase(d Dialect, dsn, name string) (string, error) {
	switch d {
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", err
		}
		cfg.DBName = name
		return cfg.FormatDSN(), nil
	case Postgres:
		if isPostgresURL(dsn) {
			u, err := url.Parse(dsn)
			if err != nil {
				return "", err
			}
			u.Path = "/" + name
			u.RawPath = ""
			return u.String(), nil
		}
		// lib/pq keeps the last value of a repeated key
		return strings.TrimSpace(dsn) + " dbname=" + pgQuote(name), nil
	}
	return dsn, nil
}

// pgOptions parses a key=value connection string. Values may be single
// quoted with backslash escapes.
func pgOptions(dsn string) map[string]string {
	opts := make(map[string]string)
	s := dsn
	for {
		s = strings.TrimLeft(s, " \t\n\r")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return opts
		}
		key := strings.TrimSpace(s[:eq])
		s = strings.TrimLeft(s[eq+1:], " \t")

		var val strings.Builder
		quoted := strings.HasPrefix(s, "'")
		if quoted {
			s = s[1:]
		}
		for len(s) > 0 {
			c := s[0]
			if quoted && c == '\'' {
				s = s[1:]
				break
			}
			if !quoted && strings.IndexByte(" \t\n\r", c) >= 0 {
				break
			}
			if c == '\\' && len(s) > 1 {
				s = s[1:]
				c = s[0]
			}
			val.WriteByte(c)
			s = s[1:]
		}
		opts[key] = val.String()
	}
}

func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n\r'\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// connectPlan is how OpenSQLSink reaches a database that may not exist yet.
type connectPlan struct {
	database string
	admin    string
	target   string
}

func planConnect(d Dialect, dsn string, cfg ProvisionConfig) (connectPlan, error) {
	plan := connectPlan{target: dsn}
	if !cfg.SchemaCheckEnabled || d == SQLite {
		return plan, nil
	}
	name := cfg.Database
	if name == "" {
		n, err := DatabaseName(d, dsn)
		if err != nil {
			return plan, fmt.Errorf("parse %s dsn: %w", d, err)
		}
		name = n
	}
	if name == "" {
		return plan, nil
	}
	plan.database = name

	var err error
	if plan.target, err = WithDatabase(d, dsn, name); err != nil {
		return plan, fmt.Errorf("parse %s dsn: %w", d, err)
	}
	if plan.admin, err = WithDatabase(d, dsn, maintenanceDatabase(d)); err != nil {
		return plan, fmt.Errorf("parse %s dsn: %w", d, err)
	}
	return plan, nil
}
