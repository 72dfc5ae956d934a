package csql

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"
	"github.com/relabs-tech/garage/core/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates or upgrades all relations of the service in the database's schema.
// The goose version table lives in the same schema.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(logger.Default())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.DB, "migrations")
}
