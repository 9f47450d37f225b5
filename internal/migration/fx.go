package migration

import (
	credentialdomain "github.com/finanze/finanze/internal/credential/domain"
	fetchrecorddomain "github.com/finanze/finanze/internal/fetchrecord/domain"
	positiondomain "github.com/finanze/finanze/internal/position/domain"
	sessiondomain "github.com/finanze/finanze/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run creates or updates the schema. The default deployment is a local sqlite
// file, so schema management stays inside the binary.
func Run(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&credentialdomain.Record{},
		&sessiondomain.Session{},
		&fetchrecorddomain.Record{},
		&positiondomain.Snapshot{},
	)
}

// Module runs migrations at wiring time, before any OnStart hook touches the
// tables (the fetch record log warms its cache on start).
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		if err := Run(conn); err != nil {
			return err
		}
		log.Info("schema migrated")
		return nil
	}),
)
