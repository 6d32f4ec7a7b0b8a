package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"alocubano-ticketing/config"
	"alocubano-ticketing/migrations"
	"alocubano-ticketing/security"
	"alocubano-ticketing/store"
	"alocubano-ticketing/validators"
)

const testSecret = "test-secret"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := dbx.MustOpen("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, ddl := range migrations.Schema {
		_, err := db.NewQuery(ddl).Execute()
		require.NoError(t, err)
	}

	seedTypes := []dbx.Params{
		{"type_id": "weekender-2026-full", "event_id": "boulder-fest-2026", "name": "Full Weekend Pass", "price_cents": int64(12500), "max_scan_count": int64(10), "status": "active"},
		{"type_id": "friday-social-2026", "event_id": "boulder-fest-2026", "name": "Friday Night Social", "price_cents": int64(2000), "max_scan_count": int64(2), "status": "active"},
	}
	for _, params := range seedTypes {
		_, err := db.Insert("ticket_types", params).Execute()
		require.NoError(t, err)
	}

	runTx := func(fn func(b dbx.Builder) error) error {
		return db.Transactional(func(tx *dbx.Tx) error {
			return fn(tx)
		})
	}
	return store.New(db, runTx)
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment:         "test",
		EventID:             "boulder-fest-2026",
		DefaultMaxScanCount: 10,
		DedupWindow:         time.Hour,
		TokenSecret:         testSecret,
		TokenTTL:            time.Hour,
	}
}

func newTestSigner() *security.TokenSigner {
	return security.NewTokenSigner(testSecret, time.Hour)
}

func newTestGateway() *validators.Gateway {
	return validators.NewGateway(nil, false, 0)
}

func newTestOrderService(t *testing.T) (*OrderService, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	return NewOrderService(st, newTestGateway(), newTestConfig(), nil), st
}
