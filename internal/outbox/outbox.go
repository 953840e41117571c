// Package outbox stores events in the same transaction as the state change that produced
// them and relays them to the broker afterwards. Delivery is at least once.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending = "PENDING"
	StatusDone    = "DONE"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Event struct {
	ID        string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Enqueue records payload as a pending event. Pass the caller's transaction so the event
// commits or rolls back with the change it describes.
func Enqueue(ctx context.Context, ex Execer, topic, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	query := `
		INSERT INTO outbox_events (id, topic, event_key, payload, status, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', NOW())
	`
	if _, err := ex.ExecContext(ctx, query, uuid.NewString(), topic, key, body); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// FetchPending returns up to limit pending events, oldest first.
func (c *Conf) FetchPending(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, topic, event_key, payload, created_at
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.Key, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}
	return events, nil
}

func (c *Conf) MarkPublished(ctx context.Context, id string) error {
	query := `UPDATE outbox_events SET status = 'DONE', published_at = NOW() WHERE id = $1`
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark outbox event %s: %w", id, err)
	}
	return nil
}
