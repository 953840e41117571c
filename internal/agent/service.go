package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"procureflow/internal/apperr"
	"procureflow/internal/items"
	"procureflow/internal/validation"
	"procureflow/pkg/ctxmanage"
	"procureflow/pkg/logkey"

	"github.com/google/uuid"
)

const maxMatches = 5

type Store interface {
	CreateConversation(ctx context.Context, userID string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	AppendMessages(ctx context.Context, id string, msgs ...Message) error
}

type ItemSearcher interface {
	SearchItems(ctx context.Context, keyword string, limit, offset int) (items.SearchResult, error)
}

type Service struct {
	store   Store
	search  ItemSearcher
	replier Replier
	now     func() time.Time
}

func NewService(store Store, search ItemSearcher, replier Replier) *Service {
	if replier == nil {
		replier = CatalogReplier{}
	}
	return &Service{store: store, search: search, replier: replier, now: func() time.Time { return time.Now().UTC() }}
}

// Chat appends the user message, asks the replier for an answer grounded in catalog matches,
// appends the answer and returns the transcript. A failed reply leaves the user message stored.
func (s *Service) Chat(ctx context.Context, userID string, req ChatRequest) (Conversation, error) {
	req.Message = strings.TrimSpace(req.Message)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if err := validation.Struct("invalid chat message", req); err != nil {
		return Conversation{}, err
	}

	var conv Conversation
	var err error
	if req.ConversationID == "" {
		conv, err = s.store.CreateConversation(ctx, userID)
		if err != nil {
			return Conversation{}, apperr.Wrap("create conversation", err)
		}
	} else {
		conv, err = s.owned(ctx, userID, req.ConversationID)
		if err != nil {
			return Conversation{}, err
		}
	}

	userMsg := Message{Role: RoleUser, Content: req.Message, CreatedAt: s.now()}
	if err := s.store.AppendMessages(ctx, conv.ID, userMsg); err != nil {
		return Conversation{}, apperr.Wrap("append message", err)
	}

	matches, err := s.findItems(ctx, req.Message)
	if err != nil {
		return Conversation{}, apperr.Wrap("search catalog", err)
	}

	history := append(append([]Message{}, conv.Messages...), userMsg)
	reply, err := s.replier.Reply(ctx, ReplyInput{History: history, Matches: matches})
	if err != nil {
		slog.Error("agent reply failed", slog.String(logkey.TraceID, ctxmanage.TraceIDFrom(ctx)),
			slog.String(logkey.ConversationID, conv.ID), slog.String(logkey.ERROR, err.Error()))
		if _, ok := apperr.As(err); ok {
			return Conversation{}, err
		}
		return Conversation{}, apperr.Upstream("assistant is unavailable", err)
	}

	if err := s.store.AppendMessages(ctx, conv.ID, Message{Role: RoleAssistant, Content: reply, CreatedAt: s.now()}); err != nil {
		return Conversation{}, apperr.Wrap("append reply", err)
	}

	conv, err = s.store.GetConversation(ctx, conv.ID)
	if err != nil {
		return Conversation{}, apperr.Wrap("get conversation", err)
	}
	return conv, nil
}

// Transcript returns one of the user's conversations. Conversations of other users are not found.
func (s *Service) Transcript(ctx context.Context, userID, id string) (Conversation, error) {
	return s.owned(ctx, userID, id)
}

func (s *Service) owned(ctx context.Context, userID, id string) (Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Conversation{}, apperr.NotFound("conversation", id)
	}
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return Conversation{}, apperr.Wrap("get conversation", err)
	}
	if conv.UserID != userID {
		return Conversation{}, apperr.NotFound("conversation", id)
	}
	return conv, nil
}

// findItems searches the catalog once per keyword and keeps the first maxMatches distinct items.
func (s *Service) findItems(ctx context.Context, message string) ([]items.Item, error) {
	var matches []items.Item
	seen := map[string]struct{}{}
	for _, kw := range Keywords(message) {
		res, err := s.search.SearchItems(ctx, kw, maxMatches, 0)
		if err != nil {
			return nil, err
		}
		for _, it := range res.Items {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			matches = append(matches, it)
			if len(matches) == maxMatches {
				return matches, nil
			}
		}
	}
	return matches, nil
}
