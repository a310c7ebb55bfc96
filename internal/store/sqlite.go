package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/pkg/recerrors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS statements (
	id                TEXT PRIMARY KEY,
	account_id        TEXT NOT NULL,
	statement_date    TEXT NOT NULL,
	opening_balance   TEXT NOT NULL,
	closing_balance   TEXT NOT NULL,
	total_debits      TEXT NOT NULL,
	total_credits     TEXT NOT NULL,
	transaction_count INTEGER NOT NULL,
	status            TEXT NOT NULL,
	matched_count     INTEGER NOT NULL,
	unmatched_count   INTEGER NOT NULL,
	discrepancy_count INTEGER NOT NULL,
	source_file       TEXT NOT NULL DEFAULT '',
	uploaded_by       TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	completed_at      TEXT
);

-- Transaction IDs are content-derived and recur across re-imports of the
-- same file, so identity is the (statement_id, id) pair.
CREATE TABLE IF NOT EXISTS transactions (
	id                TEXT NOT NULL,
	statement_id      TEXT NOT NULL REFERENCES statements(id),
	date              TEXT NOT NULL,
	description       TEXT NOT NULL,
	reference         TEXT NOT NULL DEFAULT '',
	amount            TEXT NOT NULL,
	running_balance   TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT '',
	flags             TEXT NOT NULL DEFAULT '[]',
	is_matched        INTEGER NOT NULL DEFAULT 0,
	matched_book_id   TEXT NOT NULL DEFAULT '',
	match_confidence  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (statement_id, id)
);

CREATE TABLE IF NOT EXISTS items (
	id               TEXT PRIMARY KEY,
	statement_id     TEXT NOT NULL REFERENCES statements(id),
	account_id       TEXT NOT NULL,
	related_tx_id    TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL,
	status           TEXT NOT NULL,
	priority         TEXT NOT NULL,
	category         TEXT NOT NULL DEFAULT '',
	reference        TEXT NOT NULL DEFAULT '',
	expected_amount  TEXT,
	actual_amount    TEXT,
	expected_date    TEXT,
	actual_date      TEXT,
	resolved_by      TEXT NOT NULL DEFAULT '',
	resolved_at      TEXT,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_statement ON items(statement_id, status);

CREATE TABLE IF NOT EXISTS rules (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	conditions  TEXT NOT NULL,
	actions     TEXT NOT NULL,
	is_active   INTEGER NOT NULL DEFAULT 1,
	priority    INTEGER NOT NULL DEFAULT 0,
	match_count INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// SQLiteStore persists everything in a single SQLite database file. Batch
// writes run inside one SQL transaction so partial imports never land.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed bootstraps) the database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, recerrors.StorageError("open database", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent statement sessions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, recerrors.StorageError("bootstrap schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) (time.Time, error) { return time.Parse(time.RFC3339Nano, v) }

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) CreateStatement(ctx context.Context, statement *models.ReconciliationStatement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO statements (id, account_id, statement_date, opening_balance, closing_balance,
			total_debits, total_credits, transaction_count, status, matched_count, unmatched_count,
			discrepancy_count, source_file, uploaded_by, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		statement.ID, statement.AccountID, formatTime(statement.StatementDate),
		statement.OpeningBalance.String(), statement.ClosingBalance.String(),
		statement.TotalDebits.String(), statement.TotalCredits.String(),
		statement.TransactionCount, string(statement.Status),
		statement.MatchedCount, statement.UnmatchedCount, statement.DiscrepancyCount,
		statement.SourceFile, statement.UploadedBy,
		formatTime(statement.CreatedAt), formatTime(statement.UpdatedAt), nullTime(statement.CompletedAt))
	if err != nil {
		return recerrors.StorageError("create statement", err)
	}
	return nil
}

func (s *SQLiteStore) scanStatement(row interface{ Scan(...interface{}) error }) (*models.ReconciliationStatement, error) {
	var (
		statement                                        models.ReconciliationStatement
		statementDate, opening, closing, debits, credits string
		status, createdAt, updatedAt                     string
		completedAt                                      sql.NullString
	)
	err := row.Scan(&statement.ID, &statement.AccountID, &statementDate, &opening, &closing,
		&debits, &credits, &statement.TransactionCount, &status,
		&statement.MatchedCount, &statement.UnmatchedCount, &statement.DiscrepancyCount,
		&statement.SourceFile, &statement.UploadedBy, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	statement.Status = models.StatementStatus(status)
	if statement.StatementDate, err = parseTime(statementDate); err != nil {
		return nil, err
	}
	if statement.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return nil, err
	}
	if statement.ClosingBalance, err = decimal.NewFromString(closing); err != nil {
		return nil, err
	}
	if statement.TotalDebits, err = decimal.NewFromString(debits); err != nil {
		return nil, err
	}
	if statement.TotalCredits, err = decimal.NewFromString(credits); err != nil {
		return nil, err
	}
	if statement.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if statement.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if statement.CompletedAt, err = scanNullTime(completedAt); err != nil {
		return nil, err
	}
	return &statement, nil
}

const statementColumns = `id, account_id, statement_date, opening_balance, closing_balance,
	total_debits, total_credits, transaction_count, status, matched_count, unmatched_count,
	discrepancy_count, source_file, uploaded_by, created_at, updated_at, completed_at`

func (s *SQLiteStore) GetStatement(ctx context.Context, id string) (*models.ReconciliationStatement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM statements WHERE id = ?`, id)
	statement, err := s.scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recerrors.NotFoundError(recerrors.CodeStatementNotFound, id)
	}
	if err != nil {
		return nil, recerrors.StorageError("get statement", err)
	}
	return statement, nil
}

func (s *SQLiteStore) UpdateStatement(ctx context.Context, statement *models.ReconciliationStatement) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE statements SET account_id = ?, statement_date = ?, opening_balance = ?, closing_balance = ?,
			total_debits = ?, total_credits = ?, transaction_count = ?, status = ?, matched_count = ?,
			unmatched_count = ?, discrepancy_count = ?, source_file = ?, uploaded_by = ?,
			created_at = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		statement.AccountID, formatTime(statement.StatementDate),
		statement.OpeningBalance.String(), statement.ClosingBalance.String(),
		statement.TotalDebits.String(), statement.TotalCredits.String(),
		statement.TransactionCount, string(statement.Status),
		statement.MatchedCount, statement.UnmatchedCount, statement.DiscrepancyCount,
		statement.SourceFile, statement.UploadedBy,
		formatTime(statement.CreatedAt), formatTime(statement.UpdatedAt), nullTime(statement.CompletedAt),
		statement.ID)
	if err != nil {
		return recerrors.StorageError("update statement", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recerrors.NotFoundError(recerrors.CodeStatementNotFound, statement.ID)
	}
	return nil
}

func (s *SQLiteStore) ListStatements(ctx context.Context, accountID string) ([]*models.ReconciliationStatement, error) {
	query := `SELECT ` + statementColumns + ` FROM statements`
	args := []interface{}{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY statement_date, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, recerrors.StorageError("list statements", err)
	}
	defer rows.Close()
	out := make([]*models.ReconciliationStatement, 0)
	for rows.Next() {
		statement, err := s.scanStatement(rows)
		if err != nil {
			return nil, recerrors.StorageError("list statements", err)
		}
		out = append(out, statement)
	}
	if err := rows.Err(); err != nil {
		return nil, recerrors.StorageError("list statements", err)
	}
	return out, nil
}

const transactionColumns = `id, statement_id, date, description, reference, amount,
	running_balance, category, flags, is_matched, matched_book_id, match_confidence`

func (s *SQLiteStore) writeTransactions(ctx context.Context, transactions []*models.BankTransaction, insert bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return recerrors.StorageError("begin transaction", err)
	}
	defer tx.Rollback()

	var stmt *sql.Stmt
	if insert {
		stmt, err = tx.PrepareContext(ctx, `
			INSERT INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	} else {
		stmt, err = tx.PrepareContext(ctx, `
			UPDATE transactions SET date = ?, description = ?, reference = ?,
				amount = ?, running_balance = ?, category = ?, flags = ?, is_matched = ?,
				matched_book_id = ?, match_confidence = ?
			WHERE statement_id = ? AND id = ?`)
	}
	if err != nil {
		return recerrors.StorageError("prepare transactions", err)
	}
	defer stmt.Close()

	for _, t := range transactions {
		flags, err := json.Marshal(t.Flags)
		if err != nil {
			return recerrors.StorageError("encode transaction flags", err)
		}
		values := []interface{}{
			formatTime(t.Date), t.Description, t.Reference,
			t.Amount.String(), t.RunningBalance.String(), t.Category, string(flags),
			t.IsMatched, t.MatchedBookTransactionID, t.MatchConfidence,
		}
		if insert {
			values = append([]interface{}{t.ID, t.StatementID}, values...)
		} else {
			values = append(values, t.StatementID, t.ID)
		}
		res, err := stmt.ExecContext(ctx, values...)
		if err != nil {
			return recerrors.StorageError("write transactions", err)
		}
		if !insert {
			if n, _ := res.RowsAffected(); n == 0 {
				return recerrors.NotFoundError(recerrors.CodeTransactionNotFound, t.ID)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return recerrors.StorageError("commit transactions", err)
	}
	return nil
}

func (s *SQLiteStore) CreateTransactions(ctx context.Context, transactions []*models.BankTransaction) error {
	return s.writeTransactions(ctx, transactions, true)
}

func (s *SQLiteStore) UpdateTransactions(ctx context.Context, transactions []*models.BankTransaction) error {
	return s.writeTransactions(ctx, transactions, false)
}

func (s *SQLiteStore) scanTransaction(row interface{ Scan(...interface{}) error }) (*models.BankTransaction, error) {
	var (
		t                                   models.BankTransaction
		date, amount, runningBalance, flags string
	)
	err := row.Scan(&t.ID, &t.StatementID, &date, &t.Description, &t.Reference, &amount,
		&runningBalance, &t.Category, &flags, &t.IsMatched, &t.MatchedBookTransactionID, &t.MatchConfidence)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flags), &t.Flags); err != nil {
		return nil, err
	}
	if t.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if t.RunningBalance, err = decimal.NewFromString(runningBalance); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, statementID, id string) (*models.BankTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE statement_id = ? AND id = ?`, statementID, id)
	t, err := s.scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recerrors.NotFoundError(recerrors.CodeTransactionNotFound, id)
	}
	if err != nil {
		return nil, recerrors.StorageError("get transaction", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, statementID string) ([]*models.BankTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE statement_id = ? ORDER BY id`, statementID)
	if err != nil {
		return nil, recerrors.StorageError("list transactions", err)
	}
	defer rows.Close()
	out := make([]*models.BankTransaction, 0)
	for rows.Next() {
		t, err := s.scanTransaction(rows)
		if err != nil {
			return nil, recerrors.StorageError("list transactions", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, recerrors.StorageError("list transactions", err)
	}
	return out, nil
}

func (s *SQLiteStore) AccountTransactionIDs(ctx context.Context, accountID, excludeStatementID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id FROM transactions t
		JOIN statements s ON s.id = t.statement_id
		WHERE s.account_id = ? AND t.statement_id != ?`, accountID, excludeStatementID)
	if err != nil {
		return nil, recerrors.StorageError("list account transaction ids", err)
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, recerrors.StorageError("list account transaction ids", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, recerrors.StorageError("list account transaction ids", err)
	}
	return ids, nil
}

const itemColumns = `id, statement_id, account_id, related_tx_id, type, status, priority,
	category, reference, expected_amount, actual_amount, expected_date, actual_date,
	resolved_by, resolved_at, notes, created_at`

func (s *SQLiteStore) CreateItems(ctx context.Context, items []*models.ReconciliationItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return recerrors.StorageError("begin transaction", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return recerrors.StorageError("prepare items", err)
	}
	defer stmt.Close()
	for _, item := range items {
		_, err := stmt.ExecContext(ctx,
			item.ID, item.StatementID, item.AccountID, item.RelatedTransactionID,
			string(item.Type), string(item.Status), string(item.Priority),
			item.Category, item.Reference,
			nullDecimal(item.ExpectedAmount), nullDecimal(item.ActualAmount),
			nullTime(item.ExpectedDate), nullTime(item.ActualDate),
			item.ResolvedBy, nullTime(item.ResolvedAt), item.Notes, formatTime(item.CreatedAt))
		if err != nil {
			return recerrors.StorageError("create items", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return recerrors.StorageError("commit items", err)
	}
	return nil
}

func (s *SQLiteStore) scanItem(row interface{ Scan(...interface{}) error }) (*models.ReconciliationItem, error) {
	var (
		item                         models.ReconciliationItem
		itemType, status, priority   string
		expectedAmount, actualAmount sql.NullString
		expectedDate, actualDate     sql.NullString
		resolvedAt                   sql.NullString
		createdAt                    string
	)
	err := row.Scan(&item.ID, &item.StatementID, &item.AccountID, &item.RelatedTransactionID,
		&itemType, &status, &priority, &item.Category, &item.Reference,
		&expectedAmount, &actualAmount, &expectedDate, &actualDate,
		&item.ResolvedBy, &resolvedAt, &item.Notes, &createdAt)
	if err != nil {
		return nil, err
	}
	item.Type = models.ItemType(itemType)
	item.Status = models.ItemStatus(status)
	item.Priority = models.ItemPriority(priority)
	if item.ExpectedAmount, err = scanNullDecimal(expectedAmount); err != nil {
		return nil, err
	}
	if item.ActualAmount, err = scanNullDecimal(actualAmount); err != nil {
		return nil, err
	}
	if item.ExpectedDate, err = scanNullTime(expectedDate); err != nil {
		return nil, err
	}
	if item.ActualDate, err = scanNullTime(actualDate); err != nil {
		return nil, err
	}
	if item.ResolvedAt, err = scanNullTime(resolvedAt); err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*models.ReconciliationItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := s.scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recerrors.NotFoundError(recerrors.CodeItemNotFound, id)
	}
	if err != nil {
		return nil, recerrors.StorageError("get item", err)
	}
	return item, nil
}

func (s *SQLiteStore) UpdateItem(ctx context.Context, item *models.ReconciliationItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET statement_id = ?, account_id = ?, related_tx_id = ?, type = ?, status = ?,
			priority = ?, category = ?, reference = ?, expected_amount = ?, actual_amount = ?,
			expected_date = ?, actual_date = ?, resolved_by = ?, resolved_at = ?, notes = ?, created_at = ?
		WHERE id = ?`,
		item.StatementID, item.AccountID, item.RelatedTransactionID,
		string(item.Type), string(item.Status), string(item.Priority),
		item.Category, item.Reference,
		nullDecimal(item.ExpectedAmount), nullDecimal(item.ActualAmount),
		nullTime(item.ExpectedDate), nullTime(item.ActualDate),
		item.ResolvedBy, nullTime(item.ResolvedAt), item.Notes, formatTime(item.CreatedAt),
		item.ID)
	if err != nil {
		return recerrors.StorageError("update item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recerrors.NotFoundError(recerrors.CodeItemNotFound, item.ID)
	}
	return nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, filter *models.ItemFilter) ([]*models.ReconciliationItem, error) {
	// Filtering happens in Go; the filter's search clause matches several
	// columns and item volumes are small.
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, recerrors.StorageError("list items", err)
	}
	defer rows.Close()
	out := make([]*models.ReconciliationItem, 0)
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			return nil, recerrors.StorageError("list items", err)
		}
		if filter != nil && !filter.Matches(item) {
			continue
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, recerrors.StorageError("list items", err)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *SQLiteStore) CountPendingItems(ctx context.Context, statementID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE statement_id = ? AND status = ?`,
		statementID, string(models.ItemPending)).Scan(&count)
	if err != nil {
		return 0, recerrors.StorageError("count pending items", err)
	}
	return count, nil
}

func (s *SQLiteStore) DeletePendingItems(ctx context.Context, statementID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE statement_id = ? AND status = ?`,
		statementID, string(models.ItemPending))
	if err != nil {
		return recerrors.StorageError("delete pending items", err)
	}
	return nil
}

func (s *SQLiteStore) CreateRule(ctx context.Context, rule *models.ReconciliationRule) error {
	conditions, actions, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, conditions, actions, is_active, priority, match_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, conditions, actions, rule.IsActive, rule.Priority, rule.MatchCount,
		formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt))
	if err != nil {
		return recerrors.StorageError("create rule", err)
	}
	return nil
}

func marshalRuleParts(rule *models.ReconciliationRule) (string, string, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", recerrors.StorageError("encode rule conditions", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return "", "", recerrors.StorageError("encode rule actions", err)
	}
	return string(conditions), string(actions), nil
}

func (s *SQLiteStore) scanRule(row interface{ Scan(...interface{}) error }) (*models.ReconciliationRule, error) {
	var (
		rule                 models.ReconciliationRule
		conditions, actions  string
		createdAt, updatedAt string
	)
	err := row.Scan(&rule.ID, &rule.Name, &conditions, &actions,
		&rule.IsActive, &rule.Priority, &rule.MatchCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actions), &rule.Actions); err != nil {
		return nil, err
	}
	if rule.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rule.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}

const ruleColumns = `id, name, conditions, actions, is_active, priority, match_count, created_at, updated_at`

func (s *SQLiteStore) GetRule(ctx context.Context, id string) (*models.ReconciliationRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	rule, err := s.scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recerrors.NotFoundError(recerrors.CodeRuleNotFound, id)
	}
	if err != nil {
		return nil, recerrors.StorageError("get rule", err)
	}
	return rule, nil
}

func (s *SQLiteStore) UpdateRule(ctx context.Context, rule *models.ReconciliationRule) error {
	conditions, actions, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET name = ?, conditions = ?, actions = ?, is_active = ?, priority = ?,
			match_count = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, conditions, actions, rule.IsActive, rule.Priority, rule.MatchCount,
		formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt), rule.ID)
	if err != nil {
		return recerrors.StorageError("update rule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recerrors.NotFoundError(recerrors.CodeRuleNotFound, rule.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return recerrors.StorageError("delete rule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recerrors.NotFoundError(recerrors.CodeRuleNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) ListRules(ctx context.Context) ([]*models.ReconciliationRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY priority, id`)
	if err != nil {
		return nil, recerrors.StorageError("list rules", err)
	}
	defer rows.Close()
	out := make([]*models.ReconciliationRule, 0)
	for rows.Next() {
		rule, err := s.scanRule(rows)
		if err != nil {
			return nil, recerrors.StorageError("list rules", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, recerrors.StorageError("list rules", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddMatchCounts(ctx context.Context, counts map[string]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return recerrors.StorageError("begin transaction", err)
	}
	defer tx.Rollback()
	for id, n := range counts {
		if _, err := tx.ExecContext(ctx,
			`UPDATE rules SET match_count = match_count + ? WHERE id = ?`, n, id); err != nil {
			return recerrors.StorageError("add match counts", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return recerrors.StorageError("add match counts", err)
	}
	return nil
}
