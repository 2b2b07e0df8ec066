package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/elys-network/tfmm/internal/types"
	"github.com/elys-network/tfmm/internal/utils"
)

// CommitUpdate writes weights, estimators, last run time and the history record in one
// transaction. The last run time is compared and swapped so that two runners sharing the
// database cannot both commit within one interval.
func (s *PostgresStore) CommitUpdate(ctx context.Context, commit UpdateCommit) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tfmm_pools SET last_run_time = $2 WHERE pool = $1 AND last_run_time = $3;`,
			commit.Pool.String(), commit.LastRunTime, commit.PrevLastRunTime)
		if err != nil {
			return fmt.Errorf("failed to set last run time of %s: %w", commit.Pool, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows for pool %s: %w", commit.Pool, err)
		}
		if n == 0 {
			return s.commitMiss(ctx, tx, commit.Pool)
		}
		if err := updateWeights(ctx, tx, commit.Pool, commit.Weights); err != nil {
			return err
		}
		if err := upsertEstimators(ctx, tx, commit.Pool, commit.Estimators); err != nil {
			return err
		}
		if err := insertUpdate(ctx, tx, commit.Record); err != nil {
			return err
		}
		return nil
	})
}

// commitMiss tells a pool that no longer exists apart from one whose last run time moved.
func (s *PostgresStore) commitMiss(ctx context.Context, tx *sql.Tx, pool types.Address) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tfmm_pools WHERE pool = $1);`, pool.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check pool %s: %w", pool, err)
	}
	if !exists {
		return fmt.Errorf("pool %s: %w", pool, ErrNotFound)
	}
	return fmt.Errorf("last run time of pool %s: %w", pool, ErrConflict)
}

func insertUpdate(ctx context.Context, db execer, rec types.UpdateRecord) error {
	indexes := make([]int64, len(rec.OracleIndexes))
	for i, idx := range rec.OracleIndexes {
		indexes[i] = int64(idx)
	}
	query := `
		INSERT INTO tfmm_updates (
			run_id, pool, run_time, prices, oracle_indexes,
			target_weights, fixed_weights, multipliers, last_interpolation_time_possible
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := db.ExecContext(ctx, query,
		rec.RunID.String(), rec.Pool.String(), rec.RunTime,
		pq.Array(utils.DecStrings(rec.Prices)), pq.Array(indexes),
		pq.Array(utils.DecStrings(rec.TargetWeights)), pq.Array(utils.DecStrings(rec.FixedWeights)),
		pq.Array(utils.DecStrings(rec.Multipliers)), rec.LastInterpolationTimePossible,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update %s: %w", rec.RunID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert update record of %s: %w", rec.Pool, err)
	}
	return nil
}

// ListUpdates returns the most recent records of a pool.
func (s *PostgresStore) ListUpdates(ctx context.Context, pool types.Address, limit int) ([]types.UpdateRecord, error) {
	limit = historyLimit(limit)
	query := `
		SELECT run_id, pool, run_time, prices, oracle_indexes,
			target_weights, fixed_weights, multipliers, last_interpolation_time_possible, created_at
		FROM tfmm_updates
		WHERE pool = $1
		ORDER BY run_time DESC, update_id DESC
		LIMIT $2;
	`
	rows, err := s.db.QueryContext(ctx, query, pool.String(), limit)
	if err != nil {
		stateLogger.Error().Err(err).Str("pool", pool.String()).Msg("Failed to query update history")
		return nil, fmt.Errorf("failed to query updates of %s: %w", pool, err)
	}
	defer rows.Close()

	var out []types.UpdateRecord
	for rows.Next() {
		var (
			rec                                 types.UpdateRecord
			poolStr                             string
			indexes                             []int64
			prices, targets, fixed, multipliers []string
		)
		err := rows.Scan(&rec.RunID, &poolStr, &rec.RunTime, pq.Array(&prices), pq.Array(&indexes),
			pq.Array(&targets), pq.Array(&fixed), pq.Array(&multipliers),
			&rec.LastInterpolationTimePossible, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update row: %w", err)
		}
		rec.Pool = types.Address(poolStr)
		rec.OracleIndexes = make([]int, len(indexes))
		for i, idx := range indexes {
			rec.OracleIndexes[i] = int(idx)
		}
		if rec.Prices, err = utils.ParseDecs(prices); err != nil {
			return nil, err
		}
		if rec.TargetWeights, err = utils.ParseDecs(targets); err != nil {
			return nil, err
		}
		if rec.FixedWeights, err = utils.ParseDecs(fixed); err != nil {
			return nil, err
		}
		if rec.Multipliers, err = utils.ParseDecs(multipliers); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
