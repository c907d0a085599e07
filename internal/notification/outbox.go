package notification

import (
	"context"
	"database/sql"
	"encoding/json"

	"warimas-checkout/internal/db"
	"warimas-checkout/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxAttempts = 10

type Repository interface {
	Insert(ctx context.Context, q db.Querier, e *Event) error
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, q db.Querier, e *Event) error {
	const query = `
		INSERT INTO outbox_events (event_id, event_type, aggregate_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return q.QueryRowContext(ctx, query, e.EventID, e.EventType, e.AggregateID, []byte(e.Payload)).
		Scan(&e.ID, &e.CreatedAt)
}

func (r *repository) FetchPending(ctx context.Context, limit int) ([]Event, error) {
	const query = `
		SELECT id, event_id, event_type, aggregate_id, payload, attempts, created_at
		FROM outbox_events
		WHERE sent_at IS NULL AND attempts < $2
		ORDER BY id
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.AggregateID, &e.Payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET sent_at = now() WHERE id = $1`, id)
	return err
}

func (r *repository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, reason,
	)
	return err
}

// Outbox records events in the caller's transaction. They are only visible
// to the poller once that transaction commits.
type Outbox struct {
	repo Repository
}

func NewOutbox(repo Repository) *Outbox {
	return &Outbox{repo: repo}
}

func (o *Outbox) Enqueue(ctx context.Context, q db.Querier, eventType, aggregateID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	e := &Event{
		EventID:     uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     data,
	}
	if err := o.repo.Insert(ctx, q, e); err != nil {
		logger.FromCtx(ctx).Error("enqueue outbox event failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return err
	}
	return nil
}
