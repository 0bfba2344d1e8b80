package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/validate"
)

type reservations struct{ db *sql.DB }

// Acquire locks the lease row so two acquirers cannot both see it expired.
// The winner deletes any expired row and inserts its own.
func (r *reservations) Acquire(ctx context.Context, res *model.Reservation, now time.Time) (*model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var holderID, holderAlias string
	var expiresAt time.Time
	row := tx.QueryRowContext(ctx, `
        SELECT holder_agent_id, holder_alias, expires_at
        FROM reservations WHERE project_id=$1 AND resource_key=$2
        FOR UPDATE
    `, res.ProjectID, res.ResourceKey)
	switch err := row.Scan(&holderID, &holderAlias, &expiresAt); {
	case err == nil:
		if expiresAt.After(now) {
			return nil, &model.ReservationConflictError{
				ResourceKey:   res.ResourceKey,
				HolderAgentID: holderID,
				HolderAlias:   holderAlias,
				ExpiresAt:     expiresAt,
			}
		}
		if _, err := tx.ExecContext(ctx, `
            DELETE FROM reservations WHERE project_id=$1 AND resource_key=$2
        `, res.ProjectID, res.ResourceKey); err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		// free to take
	default:
		return nil, err
	}

	meta := res.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	// ON CONFLICT DO NOTHING: when the key was absent the SELECT FOR UPDATE
	// locked no row, so a concurrent acquirer may commit its insert first.
	// The loser's insert affects zero rows and reads back the winner.
	ins, err := tx.ExecContext(ctx, `
        INSERT INTO reservations
            (project_id, resource_key, holder_agent_id, holder_alias, acquired_at, expires_at, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (project_id, resource_key) DO NOTHING
    `, res.ProjectID, res.ResourceKey, res.HolderAgentID, res.HolderAlias, now, res.ExpiresAt, metaJSON)
	if err != nil {
		return nil, err
	}
	n, err := ins.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		row := tx.QueryRowContext(ctx, `
            SELECT holder_agent_id, holder_alias, expires_at
            FROM reservations WHERE project_id=$1 AND resource_key=$2
        `, res.ProjectID, res.ResourceKey)
		if err := row.Scan(&holderID, &holderAlias, &expiresAt); err != nil {
			return nil, err
		}
		return nil, &model.ReservationConflictError{
			ResourceKey:   res.ResourceKey,
			HolderAgentID: holderID,
			HolderAlias:   holderAlias,
			ExpiresAt:     expiresAt,
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := *res
	out.AcquiredAt = now
	out.Metadata = meta
	return &out, nil
}

func (r *reservations) Renew(ctx context.Context, projectID, resourceKey, holderAgentID string, now, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE reservations SET expires_at=$5
        WHERE project_id=$1 AND resource_key=$2 AND holder_agent_id=$3 AND expires_at>$4
    `, projectID, resourceKey, holderAgentID, now, expiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var one int
	row := r.db.QueryRowContext(ctx, `
        SELECT 1 FROM reservations
        WHERE project_id=$1 AND resource_key=$2 AND expires_at>$3
    `, projectID, resourceKey, now)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return err
	}
	return model.ErrForbidden
}

func (r *reservations) Release(ctx context.Context, projectID, resourceKey, holderAgentID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM reservations
        WHERE project_id=$1 AND resource_key=$2
          AND (holder_agent_id=$3 OR expires_at<=$4)
    `, projectID, resourceKey, holderAgentID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var one int
	row := r.db.QueryRowContext(ctx, `
        SELECT 1 FROM reservations
        WHERE project_id=$1 AND resource_key=$2 AND expires_at>$3
    `, projectID, resourceKey, now)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil // absent: idempotent
		}
		return false, err
	}
	return false, model.ErrForbidden
}

func (r *reservations) RevokeOwn(ctx context.Context, projectID, holderAgentID, prefix string) (int, error) {
	q := `DELETE FROM reservations WHERE project_id=$1 AND holder_agent_id=$2`
	args := []any{projectID, holderAgentID}
	if prefix != "" {
		q += ` AND resource_key LIKE $3`
		args = append(args, validate.EscapeLike(prefix)+"%")
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 && prefix != "" {
		var others int
		row := r.db.QueryRowContext(ctx, `
            SELECT COUNT(*) FROM reservations
            WHERE project_id=$1 AND resource_key LIKE $2 AND holder_agent_id<>$3
        `, projectID, validate.EscapeLike(prefix)+"%", holderAgentID)
		if err := row.Scan(&others); err != nil {
			return 0, err
		}
		if others > 0 {
			return 0, model.ErrForbidden
		}
	}
	return int(n), nil
}

func (r *reservations) List(ctx context.Context, projectID, prefix string, now time.Time) ([]*model.Reservation, error) {
	q := `SELECT project_id, resource_key, holder_agent_id, holder_alias, acquired_at, expires_at, metadata
        FROM reservations WHERE project_id=$1 AND expires_at>$2`
	args := []any{projectID, now}
	if prefix != "" {
		q += ` AND resource_key LIKE $3`
		args = append(args, validate.EscapeLike(prefix)+"%")
	}
	q += ` ORDER BY resource_key`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []*model.Reservation
	for rows.Next() {
		var rv model.Reservation
		var metaJSON []byte
		if err := rows.Scan(&rv.ProjectID, &rv.ResourceKey, &rv.HolderAgentID,
			&rv.HolderAlias, &rv.AcquiredAt, &rv.ExpiresAt, &metaJSON); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &rv.Metadata); err != nil {
				return nil, err
			}
		}
		res = append(res, &rv)
	}
	return res, rows.Err()
}
