// Package csql provides the postgres database handle of the service.
//
// The handle carries the schema name, every connection of the pool uses
// that schema as search path, so all queries of the service can work
// with unqualified table names.
package csql

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/relabs-tech/garage/core/logger"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// OpenWithSchema opens a postgres database with a schema.
// The schema gets created if it does not exist yet.
func OpenWithSchema(dataSourceName, password, schema string) *DB {
	nillog := logger.Default()
	if len(schema) == 0 {
		schema = "public"
	}
	nillog.Infoln("connecting to postgres database:", dataSourceName)
	dsn, err := dataSource(dataSourceName, password, schema)
	if err != nil {
		panic(err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		panic(err)
	}
	err = db.Ping()
	if err != nil {
		panic(err)
	}
	if schema != "public" {
		nillog.Infoln("selected database schema:", schema)
		_, err = db.Exec(`CREATE schema IF NOT EXISTS ` + pq.QuoteIdentifier(schema) + `;`)
		if err != nil {
			panic(err)
		}
	}
	return &DB{DB: db, Schema: schema}
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	schema := pq.QuoteIdentifier(db.Schema)
	_, err := db.Exec(`DROP SCHEMA ` + schema + ` CASCADE;
	CREATE schema IF NOT EXISTS ` + schema + `;`)
	if err != nil {
		logger.Default().WithError(err).Errorln("clear schema error:", db.Schema)
	}
}

// dataSource adds password and search path to a connection string. Both the
// key/value form ("host=localhost dbname=postgres") and the URL form
// ("postgres://localhost/postgres") are supported.
func dataSource(dataSourceName, password, schema string) (string, error) {
	if strings.HasPrefix(dataSourceName, "postgres://") || strings.HasPrefix(dataSourceName, "postgresql://") {
		u, err := url.Parse(dataSourceName)
		if err != nil {
			return "", fmt.Errorf("invalid connection url: %w", err)
		}
		if password != "" {
			username := ""
			if u.User != nil {
				username = u.User.Username()
			}
			u.User = url.UserPassword(username, password)
		}
		query := u.Query()
		query.Set("search_path", schema)
		u.RawQuery = query.Encode()
		return u.String(), nil
	}

	dsn := strings.TrimSpace(dataSourceName)
	if password != "" {
		dsn += " password=" + quoteValue(password)
	}
	dsn += " search_path=" + quoteValue(schema)
	return strings.TrimSpace(dsn), nil
}

// quoteValue quotes a value for the key/value connection string format
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
