package migrations

import (
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Festival catalog for the 2026 event. Prices are in cents.
func init() {
	m.Register(func(app core.App) error {
		types := []dbx.Params{
			{"type_id": "weekender-2026-full", "event_id": "boulder-fest-2026", "name": "Full Weekend Pass", "price_cents": int64(12500), "max_scan_count": int64(10), "status": "active"},
			{"type_id": "weekender-2026-class", "event_id": "boulder-fest-2026", "name": "Classes Only", "price_cents": int64(8500), "max_scan_count": int64(10), "status": "active"},
			{"type_id": "weekender-2026-social", "event_id": "boulder-fest-2026", "name": "Social Dancing", "price_cents": int64(4500), "max_scan_count": int64(10), "status": "active"},
			{"type_id": "friday-social-2026", "event_id": "boulder-fest-2026", "name": "Friday Night Social", "price_cents": int64(2000), "max_scan_count": int64(2), "status": "active"},
			{"type_id": "saturday-social-2026", "event_id": "boulder-fest-2026", "name": "Saturday Night Social", "price_cents": int64(2000), "max_scan_count": int64(2), "status": "active"},
		}

		for _, params := range types {
			q := `INSERT INTO ticket_types (type_id, event_id, name, price_cents, max_scan_count, status)
				SELECT {:type_id}, {:event_id}, {:name}, {:price_cents}, {:max_scan_count}, {:status}
				WHERE NOT EXISTS (SELECT 1 FROM ticket_types WHERE type_id = {:type_id})`
			if _, err := app.DB().NewQuery(q).Bind(params).Execute(); err != nil {
				return err
			}
		}
		return nil
	}, func(app core.App) error {
		_, err := app.DB().NewQuery(`DELETE FROM ticket_types WHERE event_id = 'boulder-fest-2026'`).Execute()
		return err
	})
}
