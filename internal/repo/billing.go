package repo

import (
	"context"
	"database/sql"

	"studyline/internal/domain"
)

func (r Repo) UpsertSubscription(ctx context.Context, tx *sql.Tx, s domain.Subscription) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO subscriptions(actor_id,plan,status,current_period_end,updated_at)
VALUES (?,?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET
plan=excluded.plan, status=excluded.status,
current_period_end=excluded.current_period_end, updated_at=excluded.updated_at`,
		s.ActorID, s.Plan, s.Status, nullable(s.CurrentPeriodEnd), s.UpdatedAt)
	return err
}

func (r Repo) GetSubscription(ctx context.Context, actorID string) (domain.Subscription, error) {
	var s domain.Subscription
	var periodEnd sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT actor_id,plan,status,current_period_end,updated_at
FROM subscriptions WHERE actor_id=?`, actorID).Scan(&s.ActorID, &s.Plan, &s.Status, &periodEnd, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if periodEnd.Valid {
		s.CurrentPeriodEnd = periodEnd.String
	}
	return s, nil
}

func (r Repo) GetUsageCounter(ctx context.Context, actorID string) (domain.UsageCounter, error) {
	var c domain.UsageCounter
	err := r.DB.QueryRowContext(ctx, `SELECT actor_id,date,count FROM usage_counters WHERE actor_id=? ORDER BY date DESC LIMIT 1`, actorID).
		Scan(&c.ActorID, &c.Date, &c.Count)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// SetUsageCounter writes the counter for one actor and day, replacing any
// other day's row so at most one row per actor survives.
func (r Repo) SetUsageCounter(ctx context.Context, tx *sql.Tx, c domain.UsageCounter) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_counters WHERE actor_id=? AND date<>?`, c.ActorID, c.Date); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO usage_counters(actor_id,date,count) VALUES (?,?,?)
ON CONFLICT(actor_id,date) DO UPDATE SET count=excluded.count`, c.ActorID, c.Date, c.Count)
	return err
}
