package service

import (
	"context"
	"fmt"

	"option_bot/internal/models"
)

// AggregateByAccount rolls exposures up per account: row count and the sum
// of |target_delta|.
func (s *Store) AggregateByAccount(ctx context.Context) ([]models.ExposureAggregate, error) {
	return s.aggregate(ctx, "account")
}

// AggregateByInstrument rolls exposures up per instrument.
func (s *Store) AggregateByInstrument(ctx context.Context) ([]models.ExposureAggregate, error) {
	return s.aggregate(ctx, "instrument")
}

func (s *Store) aggregate(ctx context.Context, key string) ([]models.ExposureAggregate, error) {
	rows, err := s.db.Conn().Query(ctx, `
		SELECT `+key+`, count(*), coalesce(sum(abs(target_delta)), 0)
		FROM exposures
		GROUP BY `+key+`
		ORDER BY `+key)
	if err != nil {
		return nil, fmt.Errorf("exposure.aggregate %s: %w", key, err)
	}
	defer rows.Close()

	var out []models.ExposureAggregate
	for rows.Next() {
		var agg models.ExposureAggregate
		if err := rows.Scan(&agg.Key, &agg.Records, &agg.AbsTargetSum); err != nil {
			return nil, fmt.Errorf("exposure.aggregate scan: %w", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exposure.aggregate rows: %w", err)
	}
	return out, nil
}
