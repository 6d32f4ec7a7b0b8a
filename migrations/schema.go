package migrations

// Schema holds the raw DDL for the ticketing tables. The exact UNIQUE
// indexes are load-bearing (dedup and redemption credentials), so the tables
// are created with explicit SQL instead of collection definitions. The test
// suites reuse this slice to build their sqlite fixtures.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS ticket_types (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		type_id        TEXT    NOT NULL,
		event_id       TEXT    NOT NULL,
		name           TEXT    NOT NULL,
		price_cents    INTEGER NOT NULL,
		max_scan_count INTEGER NOT NULL DEFAULT 10,
		status         TEXT    NOT NULL DEFAULT 'active',
		UNIQUE (type_id)
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id    TEXT    NOT NULL,
		payment_status    TEXT    NOT NULL DEFAULT 'pending',
		status            TEXT    NOT NULL DEFAULT 'pending',
		payment_processor TEXT    NOT NULL DEFAULT '',
		stripe_session_id TEXT    NOT NULL DEFAULT '',
		paypal_order_id   TEXT    NOT NULL DEFAULT '',
		paypal_capture_id TEXT    NOT NULL DEFAULT '',
		customer_email    TEXT    NOT NULL,
		customer_name     TEXT    NOT NULL DEFAULT '',
		customer_phone    TEXT    NOT NULL DEFAULT '',
		cart_fingerprint  TEXT    NOT NULL,
		dedup_bucket      INTEGER NOT NULL,
		total_cents       INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT    NOT NULL,
		completed_at      TEXT,
		UNIQUE (transaction_id),
		UNIQUE (cart_fingerprint, dedup_bucket)
	)`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id           TEXT    NOT NULL,
		transaction_id      INTEGER NOT NULL,
		event_id            TEXT    NOT NULL,
		ticket_type         TEXT    NOT NULL,
		price_cents         INTEGER NOT NULL DEFAULT 0,
		attendee_first_name TEXT    NOT NULL DEFAULT '',
		attendee_last_name  TEXT    NOT NULL DEFAULT '',
		attendee_email      TEXT    NOT NULL DEFAULT '',
		status              TEXT    NOT NULL DEFAULT 'valid',
		registration_status TEXT    NOT NULL DEFAULT 'pending_payment',
		registered_at       TEXT,
		validation_code     TEXT    NOT NULL,
		scan_count          INTEGER NOT NULL DEFAULT 0,
		max_scan_count      INTEGER NOT NULL DEFAULT 10,
		first_scanned_at    TEXT,
		last_scanned_at     TEXT,
		created_at          TEXT    NOT NULL,
		UNIQUE (ticket_id),
		UNIQUE (validation_code),
		FOREIGN KEY (transaction_id) REFERENCES transactions (id) ON DELETE CASCADE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tickets_transaction ON tickets (transaction_id)`,

	`CREATE TABLE IF NOT EXISTS qr_validations (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id         INTEGER NOT NULL,
		validation_result TEXT    NOT NULL,
		failure_reason    TEXT    NOT NULL DEFAULT '',
		validation_source TEXT    NOT NULL DEFAULT 'scanner',
		created_at        TEXT    NOT NULL,
		FOREIGN KEY (ticket_id) REFERENCES tickets (id) ON DELETE CASCADE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_qr_validations_ticket ON qr_validations (ticket_id)`,
}
