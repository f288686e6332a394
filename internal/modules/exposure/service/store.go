package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"option_bot/internal/models"
	"option_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists ExposureRecord rows. The two uniqueness invariants live in
// the schema (partial unique indexes), not in application locks: one
// position row per (account, instrument), one row per non-null order id.
type Store struct {
	db *db.PgTxManager
}

func NewStore(txm *db.PgTxManager) *Store {
	return &Store{db: txm}
}

const recordColumns = `id, account, instrument, order_id, target_delta, move_delta, min_tenor_days, signal_id, kind, created_at, updated_at`

func scanRecord(row pgx.Row) (models.ExposureRecord, error) {
	var (
		rec      models.ExposureRecord
		orderID  *string
		tenor    *int
		signalID *string
		kind     string
	)
	err := row.Scan(
		&rec.ID, &rec.Account, &rec.Instrument, &orderID,
		&rec.TargetDelta, &rec.MoveDelta, &tenor, &signalID,
		&kind, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return models.ExposureRecord{}, err
	}
	if orderID != nil {
		rec.OrderID = *orderID
	}
	if tenor != nil {
		rec.MinTenorDays = *tenor
	}
	if signalID != nil {
		rec.SignalID = *signalID
	}
	rec.Kind = models.ExposureKind(kind)
	return rec, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

// IsConstraintViolation reports a unique-index conflict. Callers doing
// upserts treat this as "already exists, update instead".
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a new record and returns it with id and timestamps set.
func (s *Store) Create(ctx context.Context, rec models.ExposureRecord) (out models.ExposureRecord, err error) {
	defer func() {
		if err != nil && !IsConstraintViolation(err) {
			err = fmt.Errorf("exposure.Create: %w", err)
		}
	}()

	if err = rec.Validate(); err != nil {
		return models.ExposureRecord{}, err
	}

	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		out, err = insertTx(ctxTx, tx, rec)
		return err
	})
	return out, err
}

func insertTx(ctx context.Context, tx pgx.Tx, rec models.ExposureRecord) (models.ExposureRecord, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO exposures (account, instrument, order_id, target_delta, move_delta, min_tenor_days, signal_id, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+recordColumns,
		rec.Account, rec.Instrument, nullStr(rec.OrderID),
		rec.TargetDelta, rec.MoveDelta, nullInt(rec.MinTenorDays),
		nullStr(rec.SignalID), string(rec.Kind),
	)
	return scanRecord(row)
}

// GetByID returns one record or models.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (models.ExposureRecord, error) {
	row := s.db.Conn().QueryRow(ctx, `SELECT `+recordColumns+` FROM exposures WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExposureRecord{}, models.ErrNotFound
		}
		return models.ExposureRecord{}, fmt.Errorf("exposure.GetByID %d: %w", id, err)
	}
	return rec, nil
}

func filterClause(f models.ExposureFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Account != "" {
		add("account = $%d", f.Account)
	}
	if f.Instrument != "" {
		add("instrument = $%d", f.Instrument)
	}
	if f.OrderID != "" {
		add("order_id = $%d", f.OrderID)
	}
	if f.SignalID != "" {
		add("signal_id = $%d", f.SignalID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query lists records matching the filter, oldest first.
func (s *Store) Query(ctx context.Context, f models.ExposureFilter) ([]models.ExposureRecord, error) {
	where, args := filterClause(f)
	rows, err := s.db.Conn().Query(ctx, `SELECT `+recordColumns+` FROM exposures`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("exposure.Query: %w", err)
	}
	defer rows.Close()

	var out []models.ExposureRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("exposure.Query scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exposure.Query rows: %w", err)
	}
	return out, nil
}

// GetBySignal returns the single record for an account + signal id.
func (s *Store) GetBySignal(ctx context.Context, account, signalID string) (models.ExposureRecord, error) {
	recs, err := s.Query(ctx, models.ExposureFilter{Account: account, SignalID: signalID})
	if err != nil {
		return models.ExposureRecord{}, err
	}
	if len(recs) == 0 {
		return models.ExposureRecord{}, models.ErrNotFound
	}
	return recs[0], nil
}

// Delete removes one record by id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Conn().Exec(ctx, `DELETE FROM exposures WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("exposure.Delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteByFilter removes every matching record, returning the count.
func (s *Store) DeleteByFilter(ctx context.Context, f models.ExposureFilter) (int64, error) {
	where, args := filterClause(f)
	if where == "" {
		return 0, fmt.Errorf("exposure.DeleteByFilter: refusing to delete without a filter")
	}
	tag, err := s.db.Conn().Exec(ctx, `DELETE FROM exposures`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("exposure.DeleteByFilter: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeStaleOrders drops order-kind rows not touched for maxAge. Resting
// orders either fill (promoted to position) or die; anything older is junk.
func (s *Store) PurgeStaleOrders(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	tag, err := s.db.Conn().Exec(ctx,
		`DELETE FROM exposures WHERE kind = $1 AND updated_at < $2`,
		string(models.KindOrder), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("exposure.PurgeStaleOrders: %w", err)
	}
	return tag.RowsAffected(), nil
}
