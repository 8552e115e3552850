package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SQLiteSchema mirrors the goose migrations for the sqlite driver used in
// local development and repository tests.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS billing_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_type TEXT NOT NULL,
		status TEXT NOT NULL,
		interval TEXT NOT NULL,
		recurrence_rule TEXT,
		price_amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		features TEXT,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		owner_type TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'incomplete',
		current_period_start DATETIME,
		current_period_end DATETIME,
		activated_at DATETIME,
		canceled_at DATETIME,
		superseded_by TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS vendor_orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		vendor_id TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'TZS',
		total_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'unpaid',
		escrow_status TEXT NOT NULL DEFAULT 'none',
		paid_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		payment_intent_id TEXT,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		metadata BLOB,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS payment_intents (
		id TEXT PRIMARY KEY,
		subject_type TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'TZS',
		method TEXT NOT NULL,
		provider TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'initiated',
		channel_reference TEXT,
		provider_transaction_id TEXT,
		action_url TEXT,
		error_detail TEXT,
		last_polled_at DATETIME,
		activated_at DATETIME,
		activation_failed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_open_subject ON payment_intents (subject_type, subject_id)
		WHERE status IN ('initiated', 'awaiting_confirmation')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_channel_reference ON payment_intents (channel_reference)
		WHERE channel_reference IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS payment_callbacks (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		external_event_id TEXT NOT NULL,
		intent_id TEXT,
		provider_reference TEXT NOT NULL,
		outcome TEXT NOT NULL,
		applied BOOLEAN NOT NULL DEFAULT 0,
		note TEXT,
		payload BLOB,
		received_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_callbacks_source_event ON payment_callbacks (source, external_event_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
}

// SQLiteSeedPlans matches the plans seeded by the billing_plans migration.
var SQLiteSeedPlans = []string{
	`INSERT OR IGNORE INTO billing_plans (id, name, owner_type, status, interval, price_amount, currency_code, features, is_default, created_at, updated_at) VALUES
		('vendor_starter', 'Vendor Starter', 'vendor', 'active', 'MONTHLY', '0', 'TZS', '{"listings:10"}', 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP),
		('vendor_pro', 'Vendor Pro', 'vendor', 'active', 'MONTHLY', '25000', 'TZS', '{"listings:unlimited","analytics"}', 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP),
		('vendor_pro_annual', 'Vendor Pro Annual', 'vendor', 'active', 'ANNUAL', '250000', 'TZS', '{"listings:unlimited","analytics"}', 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP),
		('transporter_basic', 'Transporter Basic', 'transporter', 'active', 'MONTHLY', '0', 'TZS', '{"routes:1"}', 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP),
		('transporter_fleet', 'Transporter Fleet', 'transporter', 'active', 'EVERY_30_DAYS', '40000', 'TZS', '{"routes:unlimited","fleet"}', 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
}

// ApplySQLite creates the schema on a sqlite connection. Statements are
// idempotent so it is safe on every boot.
func ApplySQLite(ctx context.Context, conn *gorm.DB, seed bool) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	stmts := SQLiteSchema
	if seed {
		stmts = append(append([]string{}, SQLiteSchema...), SQLiteSeedPlans...)
	}
	for _, stmt := range stmts {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
