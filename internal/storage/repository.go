// Package storage is the SQLite backend: transactions, accounts, stored
// scores, auxiliary signals and preferences.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"lifescore/internal/core"
	"lifescore/internal/sources"
)

const pragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ sources.Store = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it to the latest schema.
func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("SQLite database ready", "db_path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) SaveAccount(ctx context.Context, a core.Account) error {
	if a.ID == "" {
		return fmt.Errorf("save account: %w", core.ErrEmptyID)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, balance, currency) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			balance = excluded.balance,
			currency = excluded.currency,
			updated_at = CURRENT_TIMESTAMP`,
		a.ID, a.Name, a.Balance.String(), a.Currency)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, balance, currency FROM accounts ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var (
			a       core.Account
			balance string
		)
		if err := rows.Scan(&a.ID, &a.Name, &balance, &a.Currency); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("account %s balance %q: %w", a.ID, balance, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const txColumns = `t.id, t.account_id, t.merchant, t.category, t.category_color, t.amount, t.date, t.status`

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f sources.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, "t.account_id = ?")
		args = append(args, f.AccountID)
	}
	if !f.From.IsZero() {
		where = append(where, "t.date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "t.date <= ?")
		args = append(args, f.To.String())
	}
	query := "SELECT " + txColumns + " FROM transactions t"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.date, t.id"

	return r.queryTransactions(ctx, "list transactions", query, args...)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	txs, err := r.queryTransactions(ctx, "get transaction", "SELECT "+txColumns+" FROM transactions t WHERE t.id = ?", id)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(txs) == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, sources.ErrNotFound)
	}
	return txs[0], nil
}

// SaveTransaction upserts tx and drops any scores stored for a previous
// version of it.
func (r *SQLiteRepository) SaveTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbtx.Rollback()

	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, merchant, category, category_color, amount, date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			merchant = excluded.merchant,
			category = excluded.category,
			category_color = excluded.category_color,
			amount = excluded.amount,
			date = excluded.date,
			status = excluded.status`,
		tx.ID, tx.AccountID, tx.Merchant, tx.Category.Name, tx.Category.Color,
		tx.Amount.String(), tx.Date.String(), string(tx.Status))
	if err != nil {
		return fmt.Errorf("save transaction %s: %w", tx.ID, err)
	}
	if _, err := dbtx.ExecContext(ctx, `DELETE FROM transaction_scores WHERE transaction_id = ?`, tx.ID); err != nil {
		return fmt.Errorf("reset scores %s: %w", tx.ID, err)
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit transaction %s: %w", tx.ID, err)
	}

	r.logger.DebugContext(ctx, "Transaction saved", "transaction_id", tx.ID, "date", tx.Date.String())
	return nil
}

func (r *SQLiteRepository) SaveScores(ctx context.Context, id string, s core.ScoreTriple, catalogVersion int) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_scores (transaction_id, financial, health, eco, catalog_version)
		SELECT id, ?, ?, ?, ? FROM transactions WHERE id = ?
		ON CONFLICT(transaction_id) DO UPDATE SET
			financial = excluded.financial,
			health = excluded.health,
			eco = excluded.eco,
			catalog_version = excluded.catalog_version,
			scored_at = CURRENT_TIMESTAMP`,
		s.Financial, s.Health, s.Eco, catalogVersion, id)
	if err != nil {
		return fmt.Errorf("save scores %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save scores %s: %w", id, sources.ErrNotFound)
	}
	return nil
}

// StoredScores returns the persisted scores of a transaction and the
// catalog version they were computed with.
func (r *SQLiteRepository) StoredScores(ctx context.Context, id string) (core.ScoreTriple, int, error) {
	var (
		s       core.ScoreTriple
		version int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT financial, health, eco, catalog_version FROM transaction_scores WHERE transaction_id = ?`, id).
		Scan(&s.Financial, &s.Health, &s.Eco, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return s, 0, fmt.Errorf("scores %s: %w", id, sources.ErrNotFound)
	}
	if err != nil {
		return s, 0, fmt.Errorf("scores %s: %w", id, err)
	}
	return s, version, nil
}

func (r *SQLiteRepository) StaleTransactions(ctx context.Context, catalogVersion, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryTransactions(ctx, "stale transactions", `
		SELECT `+txColumns+` FROM transactions t
		LEFT JOIN transaction_scores s ON s.transaction_id = t.id
		WHERE s.transaction_id IS NULL OR s.catalog_version != ?
		ORDER BY t.date, t.id
		LIMIT ?`, catalogVersion, limit)
}

func (r *SQLiteRepository) ListSamples(ctx context.Context, metric string, from, to core.Date) ([]core.Sample, error) {
	query := `SELECT day, value FROM aux_metrics WHERE metric = ?`
	args := []any{metric}
	if !from.IsZero() {
		query += " AND day >= ?"
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += " AND day <= ?"
		args = append(args, to.String())
	}
	query += " ORDER BY day"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples %s: %w", metric, err)
	}
	defer rows.Close()

	var out []core.Sample
	for rows.Next() {
		var (
			day string
			s   core.Sample
		)
		if err := rows.Scan(&day, &s.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if s.Date, err = core.ParseDate(day); err != nil {
			return nil, fmt.Errorf("sample %s day %q: %w", metric, day, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AddSample(ctx context.Context, metric string, day core.Date, delta float64) (float64, error) {
	var value float64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO aux_metrics (metric, day, value) VALUES (?, ?, ?)
		ON CONFLICT(metric, day) DO UPDATE SET value = aux_metrics.value + excluded.value
		RETURNING value`,
		metric, day.String(), delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("add sample %s: %w", metric, err)
	}
	return value, nil
}

func (r *SQLiteRepository) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("preference %s: %w", key, sources.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) SetPreference(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func scanTransaction(rows *sql.Rows) (core.Transaction, error) {
	var (
		tx          core.Transaction
		amount, day string
		status      string
	)
	if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Merchant, &tx.Category.Name, &tx.Category.Color,
		&amount, &day, &status); err != nil {
		return tx, fmt.Errorf("scan transaction: %w", err)
	}
	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("transaction %s amount %q: %w", tx.ID, amount, err)
	}
	if tx.Date, err = core.ParseDate(day); err != nil {
		return tx, fmt.Errorf("transaction %s date %q: %w", tx.ID, day, err)
	}
	tx.Status = core.Status(status)
	return tx, nil
}
