package service

import (
	"context"
	"errors"
	"fmt"

	"option_bot/internal/models"

	"github.com/jackc/pgx/v5"
)

// UpdateParams is a partial field set. Nil pointers leave the column
// untouched; a pointer to the zero value clears it (order_id, signal_id
// and min_tenor_days map to NULL).
type UpdateParams struct {
	Instrument   *string
	OrderID      *string
	TargetDelta  *float64
	MoveDelta    *float64
	MinTenorDays *int
	SignalID     *string
	Kind         *models.ExposureKind
}

// Update applies a partial update and returns the fresh row.
func (s *Store) Update(ctx context.Context, id int64, p UpdateParams) (out models.ExposureRecord, err error) {
	defer func() {
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			err = fmt.Errorf("exposure.Update %d: %w", id, err)
		}
	}()

	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		out, err = updateTx(ctxTx, tx, id, p)
		return err
	})
	return out, err
}

// updateSet assembles the SET clause for a partial update. $1 is always the
// row id; assigned columns number from $2 in field order.
func updateSet(id int64, p UpdateParams) (string, []any) {
	set := "updated_at = now()"
	args := []any{id}
	assign := func(col string, v any) {
		args = append(args, v)
		set += fmt.Sprintf(", %s = $%d", col, len(args))
	}

	if p.Instrument != nil {
		assign("instrument", *p.Instrument)
	}
	if p.OrderID != nil {
		assign("order_id", nullStr(*p.OrderID))
	}
	if p.TargetDelta != nil {
		assign("target_delta", *p.TargetDelta)
	}
	if p.MoveDelta != nil {
		assign("move_delta", *p.MoveDelta)
	}
	if p.MinTenorDays != nil {
		assign("min_tenor_days", nullInt(*p.MinTenorDays))
	}
	if p.SignalID != nil {
		assign("signal_id", nullStr(*p.SignalID))
	}
	if p.Kind != nil {
		assign("kind", string(*p.Kind))
	}
	return set, args
}

func updateTx(ctx context.Context, tx pgx.Tx, id int64, p UpdateParams) (models.ExposureRecord, error) {
	set, args := updateSet(id, p)
	row := tx.QueryRow(ctx,
		`UPDATE exposures SET `+set+` WHERE id = $1 RETURNING `+recordColumns, args...)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExposureRecord{}, models.ErrNotFound
		}
		return models.ExposureRecord{}, err
	}
	return rec, nil
}

// Upsert creates the record. When a position row for the same
// (account, instrument) already exists it updates that row's deltas, tenor and
// signal in place. The unique index is the arbiter, not a pre-read.
func (s *Store) Upsert(ctx context.Context, rec models.ExposureRecord) (out models.ExposureRecord, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("exposure.Upsert: %w", err)
		}
	}()

	if err = rec.Validate(); err != nil {
		return models.ExposureRecord{}, err
	}

	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		out, err = upsertTx(ctxTx, tx, rec)
		return err
	})
	return out, err
}

func upsertTx(ctx context.Context, tx pgx.Tx, rec models.ExposureRecord) (models.ExposureRecord, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO exposures (account, instrument, order_id, target_delta, move_delta, min_tenor_days, signal_id, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account, instrument) WHERE kind = 'position'
		DO UPDATE SET
			target_delta   = EXCLUDED.target_delta,
			move_delta     = EXCLUDED.move_delta,
			min_tenor_days = EXCLUDED.min_tenor_days,
			signal_id      = EXCLUDED.signal_id,
			updated_at     = now()
		RETURNING `+recordColumns,
		rec.Account, rec.Instrument, nullStr(rec.OrderID),
		rec.TargetDelta, rec.MoveDelta, nullInt(rec.MinTenorDays),
		nullStr(rec.SignalID), string(rec.Kind),
	)
	return scanRecord(row)
}

// BatchUpsert applies every upsert or none, under serializable isolation.
func (s *Store) BatchUpsert(ctx context.Context, recs []models.ExposureRecord) (out []models.ExposureRecord, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("exposure.BatchUpsert: %w", err)
		}
	}()

	for _, rec := range recs {
		if err = rec.Validate(); err != nil {
			return nil, err
		}
	}

	err = s.db.RunSerializable(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		out = out[:0]
		for _, rec := range recs {
			saved, uErr := upsertTx(ctxTx, tx, rec)
			if uErr != nil {
				return uErr
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
