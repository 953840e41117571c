package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"procureflow/internal/items"
)

// ReplyInput is what a Replier sees for one turn: the transcript ending with the new user
// message, and the catalog items matched for it.
type ReplyInput struct {
	History []Message
	Matches []items.Item
}

type Replier interface {
	Reply(ctx context.Context, in ReplyInput) (string, error)
}

// CatalogReplier answers from catalog matches alone, without an external model.
type CatalogReplier struct{}

func (CatalogReplier) Reply(_ context.Context, in ReplyInput) (string, error) {
	if len(in.Matches) == 0 {
		return "I couldn't find any catalog items matching that. Try an item name or a category such as \"laptop\" or \"office supplies\".", nil
	}
	var b strings.Builder
	if len(in.Matches) == 1 {
		b.WriteString("I found 1 matching item in the catalog:")
	} else {
		fmt.Fprintf(&b, "I found %d matching items in the catalog:", len(in.Matches))
	}
	b.WriteString(formatMatches(in.Matches))
	b.WriteString("\nAdd one to your cart with its id.")
	return b.String(), nil
}

func formatMatches(matches []items.Item) string {
	var b strings.Builder
	for _, it := range matches {
		fmt.Fprintf(&b, "\n- %s (%s), %s, id %s", it.Name, it.Category, it.Price.StringFixed(2), it.ID)
	}
	return b.String()
}

const maxKeywords = 3

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "you": {}, "your": {}, "have": {}, "any": {},
	"are": {}, "can": {}, "need": {}, "want": {}, "looking": {}, "find": {}, "show": {},
	"some": {}, "please": {}, "what": {}, "which": {}, "there": {}, "get": {}, "buy": {},
	"order": {}, "about": {}, "from": {}, "that": {}, "this": {}, "our": {}, "team": {},
	"new": {}, "how": {}, "much": {}, "does": {}, "cost": {}, "price": {}, "items": {}, "item": {},
}

// Keywords returns up to three distinct search terms from a free-text message, in order.
func Keywords(message string) []string {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
