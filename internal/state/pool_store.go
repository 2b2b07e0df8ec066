package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/elys-network/tfmm/internal/types"
	"github.com/elys-network/tfmm/internal/utils"
)

const selectPoolColumns = `
	SELECT pool, rule, oracles, last_run_time, update_interval, lambdas,
		epsilon_max, absolute_guard_rail, parameters, pool_manager
	FROM tfmm_pools`

// CreatePool inserts the registration, the weight row and the estimator row in one
// transaction.
func (s *PostgresStore) CreatePool(ctx context.Context, reg types.PoolRegistration, weights types.WeightState, estimators types.EstimatorState) error {
	if reg.Pool.IsEmpty() {
		return fmt.Errorf("%w: empty pool address", ErrInvalidInput)
	}
	oraclesJSON, err := json.Marshal(reg.Oracles)
	if err != nil {
		return fmt.Errorf("failed to marshal oracles: %w", err)
	}
	paramsJSON, err := json.Marshal(reg.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO tfmm_pools (
				pool, rule, oracles, last_run_time, update_interval, lambdas,
				epsilon_max, absolute_guard_rail, parameters, pool_manager
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
		`
		_, err := tx.ExecContext(ctx, query,
			reg.Pool.String(), reg.Rule, oraclesJSON, reg.LastRunTime, reg.UpdateInterval,
			pq.Array(utils.DecStrings(reg.Lambdas)),
			reg.EpsilonMax.String(), reg.AbsoluteGuardRail.String(), paramsJSON, reg.PoolManager.String(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("pool %s: %w", reg.Pool, ErrDuplicateKey)
			}
			return fmt.Errorf("failed to insert pool %s: %w", reg.Pool, err)
		}
		if err := insertWeights(ctx, tx, reg.Pool, weights); err != nil {
			return err
		}
		if err := upsertEstimators(ctx, tx, reg.Pool, estimators); err != nil {
			return err
		}
		stateLogger.Info().Str("pool", reg.Pool.String()).Str("rule", reg.Rule).Msg("Pool registration saved")
		return nil
	})
}

// DeletePool removes the registration. Weight, estimator and update rows cascade.
func (s *PostgresStore) DeletePool(ctx context.Context, pool types.Address) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tfmm_pools WHERE pool = $1;`, pool.String())
	if err != nil {
		return fmt.Errorf("failed to delete pool %s: %w", pool, err)
	}
	return expectAffected(res, "pool "+pool.String())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (types.PoolRegistration, error) {
	var (
		reg                     types.PoolRegistration
		pool, manager           string
		oraclesJSON, paramsJSON []byte
		lambdas                 []string
		epsilonMax, guardRail   string
	)
	err := row.Scan(&pool, &reg.Rule, &oraclesJSON, &reg.LastRunTime, &reg.UpdateInterval,
		pq.Array(&lambdas), &epsilonMax, &guardRail, &paramsJSON, &manager)
	if err != nil {
		return types.PoolRegistration{}, err
	}
	reg.Pool = types.Address(pool)
	reg.PoolManager = types.Address(manager)

	if err := json.Unmarshal(oraclesJSON, &reg.Oracles); err != nil {
		return types.PoolRegistration{}, fmt.Errorf("failed to unmarshal oracles of %s: %w", pool, err)
	}
	if err := json.Unmarshal(paramsJSON, &reg.Parameters); err != nil {
		return types.PoolRegistration{}, fmt.Errorf("failed to unmarshal parameters of %s: %w", pool, err)
	}
	if reg.Lambdas, err = utils.ParseDecs(lambdas); err != nil {
		return types.PoolRegistration{}, fmt.Errorf("lambdas of %s: %w", pool, err)
	}
	if reg.EpsilonMax, err = utils.ParseDec(epsilonMax); err != nil {
		return types.PoolRegistration{}, fmt.Errorf("epsilon_max of %s: %w", pool, err)
	}
	if reg.AbsoluteGuardRail, err = utils.ParseDec(guardRail); err != nil {
		return types.PoolRegistration{}, fmt.Errorf("absolute_guard_rail of %s: %w", pool, err)
	}
	return reg, nil
}

func (s *PostgresStore) GetRegistration(ctx context.Context, pool types.Address) (types.PoolRegistration, error) {
	row := s.db.QueryRowContext(ctx, selectPoolColumns+` WHERE pool = $1;`, pool.String())
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PoolRegistration{}, fmt.Errorf("pool %s: %w", pool, ErrNotFound)
	}
	if err != nil {
		return types.PoolRegistration{}, fmt.Errorf("failed to load pool %s: %w", pool, err)
	}
	return reg, nil
}

func (s *PostgresStore) ListRegistrations(ctx context.Context) ([]types.PoolRegistration, error) {
	rows, err := s.db.QueryContext(ctx, selectPoolColumns+` ORDER BY pool;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var out []types.PoolRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool row: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetLastRunTime(ctx context.Context, pool types.Address, lastRunTime int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tfmm_pools SET last_run_time = $2 WHERE pool = $1;`, pool.String(), lastRunTime)
	if err != nil {
		return fmt.Errorf("failed to set last run time of %s: %w", pool, err)
	}
	return expectAffected(res, "pool "+pool.String())
}
