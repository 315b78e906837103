package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the escrow store (PostgreSQL).
var Migrations = migrate.NewGroup("escrow")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_escrow_counters",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_counters (
    name  TEXT PRIMARY KEY,
    value BIGINT NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_counters`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_invoices",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_invoices (
    id               BIGINT PRIMARY KEY,
    purpose          TEXT NOT NULL DEFAULT '',
    amount           TEXT NOT NULL DEFAULT '0',
    admin_charge     TEXT NOT NULL DEFAULT '0',
    customer_charge  TEXT NOT NULL DEFAULT '0',
    payer            TEXT NOT NULL,
    owner            TEXT NOT NULL,
    days             BIGINT NOT NULL,
    recurrent_time   BIGINT NOT NULL,
    token            TEXT NOT NULL DEFAULT '{}',
    status           TEXT NOT NULL DEFAULT 'pending',
    cycles_withdrawn BIGINT NOT NULL DEFAULT 0,
    accepted_at      BIGINT,
    created_at       BIGINT NOT NULL,
    updated_at       BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escrow_invoices_owner ON escrow_invoices (owner);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_contracts",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_contracts (
    id                 BIGINT PRIMARY KEY,
    invoice_id         BIGINT NOT NULL,
    payer              TEXT NOT NULL,
    payee              TEXT NOT NULL,
    denom              TEXT NOT NULL,
    total_cycles       BIGINT NOT NULL,
    remaining_cycles   BIGINT NOT NULL,
    next_withdrawal_at BIGINT NOT NULL,
    escrow_balance     TEXT NOT NULL DEFAULT '0',
    status             TEXT NOT NULL DEFAULT 'active',
    created_at         BIGINT NOT NULL,
    updated_at         BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escrow_contracts_payer ON escrow_contracts (payer);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_contracts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_index",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_index (
    index_name TEXT NOT NULL,
    entry_key  TEXT NOT NULL,
    id         BIGINT NOT NULL,
    PRIMARY KEY (index_name, entry_key, id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_index`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_accounts",
			Version: "20240601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_settings (
    name  TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escrow_balances (
    owner  TEXT NOT NULL,
    denom  TEXT NOT NULL,
    amount TEXT NOT NULL DEFAULT '0',
    PRIMARY KEY (owner, denom)
);

CREATE TABLE IF NOT EXISTS escrow_transfers (
    id           TEXT PRIMARY KEY,
    seq          BIGINT NOT NULL,
    operation_id TEXT NOT NULL,
    invoice_id   BIGINT NOT NULL,
    kind         TEXT NOT NULL,
    recipient    TEXT NOT NULL,
    denom        TEXT NOT NULL,
    amount       TEXT NOT NULL,
    created_at   BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escrow_transfers_invoice ON escrow_transfers (invoice_id, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS escrow_transfers;
DROP TABLE IF EXISTS escrow_balances;
DROP TABLE IF EXISTS escrow_settings;
`)
				return err
			},
		},
	)
}
