package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"procureflow/internal/apperr"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each conversation as a hash plus a message list. Both keys expire after
// ttl without activity and the list holds at most maxMessages entries.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int
}

func NewRedisStore(client *redis.Client, ttl time.Duration, maxMessages int) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxMessages <= 0 {
		maxMessages = 200
	}
	return &RedisStore{client: client, ttl: ttl, maxMessages: maxMessages}
}

func (r *RedisStore) conversationKey(id string) string {
	return "procureflow:conversation:" + id
}

func (r *RedisStore) messagesKey(id string) string {
	return "procureflow:conversation:" + id + ":messages"
}

func (r *RedisStore) CreateConversation(ctx context.Context, userID string) (Conversation, error) {
	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	key := r.conversationKey(conv.ID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"user_id":    conv.UserID,
		"created_at": now.UnixMilli(),
		"updated_at": now.UnixMilli(),
	})
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (r *RedisStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	fields, err := r.client.HGetAll(ctx, r.conversationKey(id)).Result()
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}
	if len(fields) == 0 {
		return Conversation{}, apperr.NotFound("conversation", id)
	}

	conv := Conversation{
		ID:        id,
		UserID:    fields["user_id"],
		CreatedAt: parseMillis(fields["created_at"]),
		UpdatedAt: parseMillis(fields["updated_at"]),
	}

	raw, err := r.client.LRange(ctx, r.messagesKey(id), 0, -1).Result()
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to get messages: %w", err)
	}
	conv.Messages = make([]Message, 0, len(raw))
	for _, data := range raw {
		var m Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return Conversation{}, fmt.Errorf("corrupt message in conversation %s: %w", id, err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	return conv, nil
}

// AppendMessages pushes msgs in order, trims the list to the message window and refreshes the TTL.
func (r *RedisStore) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to serialize message: %w", err)
		}
		values = append(values, data)
	}

	convKey := r.conversationKey(id)
	msgKey := r.messagesKey(id)

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, msgKey, values...)
	pipe.LTrim(ctx, msgKey, -int64(r.maxMessages), -1)
	pipe.HSet(ctx, convKey, "updated_at", time.Now().UTC().UnixMilli())
	pipe.Expire(ctx, msgKey, r.ttl)
	pipe.Expire(ctx, convKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	return nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
