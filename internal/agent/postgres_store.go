package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"procureflow/internal/apperr"

	"github.com/google/uuid"
)

// PostgresStore keeps conversations in the main database. Used when no Redis is configured.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateConversation(ctx context.Context, userID string) (Conversation, error) {
	conv := Conversation{ID: uuid.NewString(), UserID: userID, Messages: []Message{}}
	query := `
		INSERT INTO agent_conversations (id, user_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	if err := p.db.QueryRowContext(ctx, query, conv.ID, userID).Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (p *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	conv := Conversation{ID: id}
	query := `
		SELECT user_id, created_at, updated_at
		FROM agent_conversations
		WHERE id = $1
	`
	err := p.db.QueryRowContext(ctx, query, id).Scan(&conv.UserID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, apperr.NotFound("conversation", id)
		}
		return Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}

	queryMessages := `
		SELECT role, content, created_at
		FROM agent_messages
		WHERE conversation_id = $1
		ORDER BY id
	`
	rows, err := p.db.QueryContext(ctx, queryMessages, id)
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return Conversation{}, fmt.Errorf("failed to scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return Conversation{}, fmt.Errorf("error iterating messages: %w", err)
	}
	return conv, nil
}

func (p *PostgresStore) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO agent_messages (conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, query, id, m.Role, m.Content, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE agent_conversations SET updated_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}
