// Copyright 2025 Veilchain Protocol
//
// Durable wallet store: the unspent/history/pending/meta keyed
// families of spec.md §6, backed by Postgres. Connection pooling,
// the functional-options constructor and the embedded, version-
// tracked migration runner are carried over from pkg/database/client.go
// unchanged in shape, retargeted from proof-artifact storage to the
// wallet's own account tables.

package wallet

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a Postgres-backed, multi-account wallet store.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *log.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// StoreConfig holds the connection-pool parameters a Store is opened
// with.
type StoreConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxIdleTime     time.Duration
	MaxLifetime     time.Duration
}

// NewStore opens a pooled connection to cfg.DSN, verifies it, and
// returns a Store. Callers must call MigrateUp once before using a
// fresh database.
func NewStore(cfg StoreConfig, opts ...StoreOption) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("wallet: dsn cannot be empty")
	}

	s := &Store{logger: log.New(log.Writer(), "[wallet] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("wallet: open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	s.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("wallet: ping database: %w", err)
	}

	s.logger.Printf("connected to wallet store (max_open=%d, max_idle=%d)", cfg.MaxOpenConns, cfg.MaxIdleConns)
	return s, nil
}

// DB returns the underlying *sql.DB for callers that need direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the pooled connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migration is one embedded schema file.
type migration struct {
	version string
	sql     string
}

// MigrateUp applies every embedded migration not already recorded in
// schema_migrations, each inside its own transaction.
func (s *Store) MigrateUp(ctx context.Context) error {
	migrations, err := s.readMigrations()
	if err != nil {
		return fmt.Errorf("wallet: read migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("wallet: applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		s.logger.Printf("applying migration %s", m.version)
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("wallet: apply migration %s: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) readMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, migration{version: strings.TrimSuffix(d.Name(), ".sql"), sql: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureAccount inserts account if absent, a no-op otherwise.
func (s *Store) EnsureAccount(ctx context.Context, account crypto.PubKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (account_pubkey) VALUES ($1) ON CONFLICT DO NOTHING`,
		account.Bytes())
	return err
}

// UnspentRow is one row of the unspent keyed family.
type UnspentRow struct {
	OutputHash crypto.Hash
	Kind       types.OutputKind
	Amount     int64
	Blob       []byte
}

// PutUnspent inserts or replaces an unspent output entry.
func (s *Store) PutUnspent(ctx context.Context, account crypto.PubKey, row UnspentRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unspent (account_pubkey, output_hash, kind, amount, output_blob)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (account_pubkey, output_hash) DO UPDATE SET kind = $3, amount = $4, output_blob = $5`,
		account.Bytes(), row.OutputHash.Bytes(), int16(row.Kind), row.Amount, row.Blob)
	return err
}

// DeleteUnspent removes an unspent entry (it was spent or reverted away).
func (s *Store) DeleteUnspent(ctx context.Context, account crypto.PubKey, outputHash crypto.Hash) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM unspent WHERE account_pubkey = $1 AND output_hash = $2`,
		account.Bytes(), outputHash.Bytes())
	return err
}

// ListUnspent returns every unspent entry for account.
func (s *Store) ListUnspent(ctx context.Context, account crypto.PubKey) ([]UnspentRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT output_hash, kind, amount, output_blob FROM unspent WHERE account_pubkey = $1`,
		account.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnspentRow
	for rows.Next() {
		var hashBytes []byte
		var kind int16
		var row UnspentRow
		if err := rows.Scan(&hashBytes, &kind, &row.Amount, &row.Blob); err != nil {
			return nil, err
		}
		copy(row.OutputHash[:], hashBytes)
		row.Kind = types.OutputKind(kind)
		out = append(out, row)
	}
	return out, rows.Err()
}

// HistoryDirection discriminates an incoming from an outgoing entry.
type HistoryDirection int16

const (
	HistoryIncoming HistoryDirection = iota
	HistoryOutgoing
)

// HistoryRow is one row of the history keyed family, ordered by ts.
type HistoryRow struct {
	Timestamp types.Timestamp
	TxHash    crypto.Hash
	Direction HistoryDirection
	Amount    int64
	Blob      []byte
}

// PutHistory appends a history entry.
func (s *Store) PutHistory(ctx context.Context, account crypto.PubKey, row HistoryRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (account_pubkey, ts, tx_hash, direction, amount, entry_blob)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (account_pubkey, ts, tx_hash) DO NOTHING`,
		account.Bytes(), int64(row.Timestamp), row.TxHash.Bytes(), int16(row.Direction), row.Amount, row.Blob)
	return err
}

// ListHistory returns up to limit entries starting at or after
// startingFrom, oldest first (spec.md §6 history_info).
func (s *Store) ListHistory(ctx context.Context, account crypto.PubKey, startingFrom types.Timestamp, limit int) ([]HistoryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, tx_hash, direction, amount, entry_blob FROM history
		 WHERE account_pubkey = $1 AND ts >= $2 ORDER BY ts ASC LIMIT $3`,
		account.Bytes(), int64(startingFrom), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var ts int64
		var hashBytes []byte
		var direction int16
		var row HistoryRow
		if err := rows.Scan(&ts, &hashBytes, &direction, &row.Amount, &row.Blob); err != nil {
			return nil, err
		}
		row.Timestamp = types.Timestamp(ts)
		copy(row.TxHash[:], hashBytes)
		row.Direction = HistoryDirection(direction)
		out = append(out, row)
	}
	return out, rows.Err()
}

// TransactionStatus is the pending-family status column (spec.md §4.G).
type TransactionStatus int16

const (
	StatusCreated TransactionStatus = iota
	StatusAccepted
	StatusPrepared
	StatusCommitted
	StatusRollback
	StatusRejected
	StatusConflicted
)

// PendingRow is one row of the pending keyed family.
type PendingRow struct {
	TxHash      crypto.Hash
	SubmittedAt types.Timestamp
	Status      TransactionStatus
	Epoch       types.Epoch
	Offset      types.Offset
	Blob        []byte
}

// PutPending inserts or updates a pending transaction's status.
func (s *Store) PutPending(ctx context.Context, account crypto.PubKey, row PendingRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending (account_pubkey, tx_hash, submitted_at, status, epoch, offset_in_epoch, tx_blob)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (account_pubkey, tx_hash) DO UPDATE SET status = $4, epoch = $5, offset_in_epoch = $6`,
		account.Bytes(), row.TxHash.Bytes(), int64(row.SubmittedAt), int16(row.Status), uint64(row.Epoch), uint32(row.Offset), row.Blob)
	return err
}

// DeletePending removes a pending entry once it is finalized off the
// reversible window or permanently rejected.
func (s *Store) DeletePending(ctx context.Context, account crypto.PubKey, txHash crypto.Hash) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending WHERE account_pubkey = $1 AND tx_hash = $2`,
		account.Bytes(), txHash.Bytes())
	return err
}

// ListPendingByStatus returns every pending entry in the given status.
func (s *Store) ListPendingByStatus(ctx context.Context, account crypto.PubKey, status TransactionStatus) ([]PendingRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, submitted_at, status, epoch, offset_in_epoch, tx_blob FROM pending
		 WHERE account_pubkey = $1 AND status = $2`,
		account.Bytes(), int16(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingRow
	for rows.Next() {
		var hashBytes []byte
		var submittedAt int64
		var status int16
		var epoch uint64
		var offset uint32
		var row PendingRow
		if err := rows.Scan(&hashBytes, &submittedAt, &status, &epoch, &offset, &row.Blob); err != nil {
			return nil, err
		}
		copy(row.TxHash[:], hashBytes)
		row.SubmittedAt = types.Timestamp(submittedAt)
		row.Status = TransactionStatus(status)
		row.Epoch = types.Epoch(epoch)
		row.Offset = types.Offset(offset)
		out = append(out, row)
	}
	return out, rows.Err()
}

// SetEpoch records meta/epoch: the epoch the account's view is
// current as of.
func (s *Store) SetEpoch(ctx context.Context, account crypto.PubKey, epoch types.Epoch) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET epoch = $2 WHERE account_pubkey = $1`,
		account.Bytes(), uint64(epoch))
	return err
}

// Epoch reads meta/epoch.
func (s *Store) Epoch(ctx context.Context, account crypto.PubKey) (types.Epoch, error) {
	var epoch uint64
	err := s.db.QueryRowContext(ctx, `SELECT epoch FROM accounts WHERE account_pubkey = $1`, account.Bytes()).Scan(&epoch)
	return types.Epoch(epoch), err
}

// SetBalanceChanged records meta/balance_changed, the dirty flag the
// account sets when applying or reverting a block changes its
// outputs. Nothing in this package clears it.
func (s *Store) SetBalanceChanged(ctx context.Context, account crypto.PubKey, changed bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance_changed = $2 WHERE account_pubkey = $1`,
		account.Bytes(), changed)
	return err
}

// BalanceChanged reads meta/balance_changed.
func (s *Store) BalanceChanged(ctx context.Context, account crypto.PubKey) (bool, error) {
	var changed bool
	err := s.db.QueryRowContext(ctx, `SELECT balance_changed FROM accounts WHERE account_pubkey = $1`, account.Bytes()).Scan(&changed)
	return changed, err
}

// SetSealed records an account's sealed flag (spec.md §7 "sealed
// accounts answer only unseal/account_info/disable").
func (s *Store) SetSealed(ctx context.Context, account crypto.PubKey, sealed bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET sealed = $2 WHERE account_pubkey = $1`,
		account.Bytes(), sealed)
	return err
}

// Sealed reads an account's sealed flag.
func (s *Store) Sealed(ctx context.Context, account crypto.PubKey) (bool, error) {
	var sealed bool
	err := s.db.QueryRowContext(ctx, `SELECT sealed FROM accounts WHERE account_pubkey = $1`, account.Bytes()).Scan(&sealed)
	return sealed, err
}
