package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/types"
	"github.com/elys-network/tfmm/internal/utils"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertWeights(ctx context.Context, db execer, pool types.Address, w types.WeightState) error {
	query := `
		INSERT INTO tfmm_weights (pool, fixed_weights, multipliers, last_update_time, last_interpolation_time_possible)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := db.ExecContext(ctx, query, pool.String(),
		pq.Array(utils.DecStrings(w.FixedWeights)), pq.Array(utils.DecStrings(w.Multipliers)),
		w.LastUpdateTime, w.LastInterpolationTimePossible)
	if err != nil {
		return fmt.Errorf("failed to insert weights of %s: %w", pool, err)
	}
	return nil
}

func updateWeights(ctx context.Context, db execer, pool types.Address, w types.WeightState) error {
	query := `
		UPDATE tfmm_weights
		SET fixed_weights = $2, multipliers = $3, last_update_time = $4,
			last_interpolation_time_possible = $5, updated_at = CURRENT_TIMESTAMP
		WHERE pool = $1;
	`
	res, err := db.ExecContext(ctx, query, pool.String(),
		pq.Array(utils.DecStrings(w.FixedWeights)), pq.Array(utils.DecStrings(w.Multipliers)),
		w.LastUpdateTime, w.LastInterpolationTimePossible)
	if err != nil {
		return fmt.Errorf("failed to update weights of %s: %w", pool, err)
	}
	return expectAffected(res, "weights of "+pool.String())
}

type packedEstimators struct {
	movingAverages, shortMovingAverages, gradient, variance, covariance []byte
}

func packEstimators(e types.EstimatorState) (packedEstimators, error) {
	var (
		p   packedEstimators
		err error
	)
	if p.movingAverages, err = estimator.Pack(e.MovingAverages); err != nil {
		return p, fmt.Errorf("moving averages: %w", err)
	}
	if p.shortMovingAverages, err = estimator.Pack(e.ShortMovingAverages); err != nil {
		return p, fmt.Errorf("short moving averages: %w", err)
	}
	if p.gradient, err = estimator.Pack(e.GradientIntermediate); err != nil {
		return p, fmt.Errorf("gradient intermediate: %w", err)
	}
	if p.variance, err = estimator.Pack(e.VarianceIntermediate); err != nil {
		return p, fmt.Errorf("variance intermediate: %w", err)
	}
	if p.covariance, err = estimator.PackMatrix(e.CovarianceIntermediate); err != nil {
		return p, fmt.Errorf("covariance intermediate: %w", err)
	}
	return p, nil
}

// unpackVector keeps absent history as a nil slice.
func unpackVector(data []byte) ([]sdkmath.LegacyDec, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return estimator.Unpack(data)
}

func upsertEstimators(ctx context.Context, db execer, pool types.Address, e types.EstimatorState) error {
	p, err := packEstimators(e)
	if err != nil {
		return fmt.Errorf("failed to pack estimators of %s: %w", pool, err)
	}
	query := `
		INSERT INTO tfmm_estimators (
			pool, moving_averages, short_moving_averages, gradient_intermediate,
			variance_intermediate, covariance_intermediate
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pool) DO UPDATE SET
			moving_averages = EXCLUDED.moving_averages,
			short_moving_averages = EXCLUDED.short_moving_averages,
			gradient_intermediate = EXCLUDED.gradient_intermediate,
			variance_intermediate = EXCLUDED.variance_intermediate,
			covariance_intermediate = EXCLUDED.covariance_intermediate,
			updated_at = CURRENT_TIMESTAMP;
	`
	_, err = db.ExecContext(ctx, query, pool.String(),
		p.movingAverages, p.shortMovingAverages, p.gradient, p.variance, p.covariance)
	if err != nil {
		return fmt.Errorf("failed to save estimators of %s: %w", pool, err)
	}
	return nil
}

func (s *PostgresStore) GetWeights(ctx context.Context, pool types.Address) (types.WeightState, error) {
	query := `
		SELECT fixed_weights, multipliers, last_update_time, last_interpolation_time_possible
		FROM tfmm_weights WHERE pool = $1;
	`
	var (
		w                  types.WeightState
		fixed, multipliers []string
	)
	err := s.db.QueryRowContext(ctx, query, pool.String()).Scan(
		pq.Array(&fixed), pq.Array(&multipliers), &w.LastUpdateTime, &w.LastInterpolationTimePossible)
	if errors.Is(err, sql.ErrNoRows) {
		return types.WeightState{}, fmt.Errorf("weights of %s: %w", pool, ErrNotFound)
	}
	if err != nil {
		return types.WeightState{}, fmt.Errorf("failed to load weights of %s: %w", pool, err)
	}
	if w.FixedWeights, err = utils.ParseDecs(fixed); err != nil {
		return types.WeightState{}, fmt.Errorf("fixed weights of %s: %w", pool, err)
	}
	if w.Multipliers, err = utils.ParseDecs(multipliers); err != nil {
		return types.WeightState{}, fmt.Errorf("multipliers of %s: %w", pool, err)
	}
	return w, nil
}

func (s *PostgresStore) SaveWeights(ctx context.Context, pool types.Address, weights types.WeightState) error {
	return updateWeights(ctx, s.db, pool, weights)
}

func (s *PostgresStore) GetEstimators(ctx context.Context, pool types.Address) (types.EstimatorState, error) {
	query := `
		SELECT moving_averages, short_moving_averages, gradient_intermediate,
			variance_intermediate, covariance_intermediate
		FROM tfmm_estimators WHERE pool = $1;
	`
	var p packedEstimators
	err := s.db.QueryRowContext(ctx, query, pool.String()).Scan(
		&p.movingAverages, &p.shortMovingAverages, &p.gradient, &p.variance, &p.covariance)
	if errors.Is(err, sql.ErrNoRows) {
		return types.EstimatorState{}, fmt.Errorf("estimators of %s: %w", pool, ErrNotFound)
	}
	if err != nil {
		return types.EstimatorState{}, fmt.Errorf("failed to load estimators of %s: %w", pool, err)
	}

	var e types.EstimatorState
	if e.MovingAverages, err = unpackVector(p.movingAverages); err != nil {
		return e, fmt.Errorf("moving averages of %s: %w", pool, err)
	}
	if e.ShortMovingAverages, err = unpackVector(p.shortMovingAverages); err != nil {
		return e, fmt.Errorf("short moving averages of %s: %w", pool, err)
	}
	if e.GradientIntermediate, err = unpackVector(p.gradient); err != nil {
		return e, fmt.Errorf("gradient intermediate of %s: %w", pool, err)
	}
	if e.VarianceIntermediate, err = unpackVector(p.variance); err != nil {
		return e, fmt.Errorf("variance intermediate of %s: %w", pool, err)
	}
	if e.CovarianceIntermediate, err = estimator.UnpackMatrix(p.covariance); err != nil {
		return e, fmt.Errorf("covariance intermediate of %s: %w", pool, err)
	}
	return e, nil
}

func (s *PostgresStore) SaveEstimators(ctx context.Context, pool types.Address, estimators types.EstimatorState) error {
	if _, err := s.GetRegistration(ctx, pool); err != nil {
		return err
	}
	return upsertEstimators(ctx, s.db, pool, estimators)
}
