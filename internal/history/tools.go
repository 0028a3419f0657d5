package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marlowe-agent/marlowe/internal/tools"
)

// Toolset lets the model search the transcript archive.
type Toolset struct {
	archive *Archive
}

func NewToolset(archive *Archive) *Toolset {
	return &Toolset{archive: archive}
}

// Methods implements tools.Toolset.
func (t *Toolset) Methods() []tools.Method {
	return []tools.Method{
		{
			Name: "search_conversation_history",
			Doc: `Search past conversation turns that have left the current context.

Args:
    phrase: The text to look for.
    limit: Maximum number of turns to return.`,
			Args: searchArgs{},
			Call: t.search,
		},
	}
}

type searchArgs struct {
	Phrase string `json:"phrase"`
	Limit  int    `json:"limit"`
}

func (t *Toolset) search(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Phrase == "" {
		return nil, fmt.Errorf("phrase is required")
	}

	entries, err := t.archive.Search(ctx, a.Phrase, a.Limit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return "No matching turns found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d matching turn(s), newest first:\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s [%s/%s] %s\n", e.Date.Format("2006-01-02 15:04"), e.Channel, e.Role, e.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
