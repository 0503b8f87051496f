package app

import (
	"fmt"

	"github.com/shrimpsizemoose/missionboard/internal/store"
	"github.com/shrimpsizemoose/missionboard/internal/store/postgres"
	"github.com/shrimpsizemoose/missionboard/internal/store/sqlite"
)

func NewStore(dsn, migrationsDir string) (store.ProgressStore, error) {
	switch store.TypeFromDSN(dsn) {
	case store.DBTypePostgres:
		return postgres.NewPostgresStore(dsn, migrationsDir)
	case store.DBTypeSQLite:
		return sqlite.NewSQLiteStore(dsn, migrationsDir)
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", dsn)
	}
}
