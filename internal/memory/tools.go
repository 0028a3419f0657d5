package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marlowe-agent/marlowe/internal/tools"
)

// dateLayout is how record dates are shown to the model.
const dateLayout = "2006-01-02"

// Toolset exposes the memory store to the model.
type Toolset struct {
	store *Store
}

func NewToolset(store *Store) *Toolset {
	return &Toolset{store: store}
}

// Methods implements tools.Toolset.
func (t *Toolset) Methods() []tools.Method {
	return []tools.Method{
		{
			Name: "store_memory",
			Doc: `Store something worth remembering across conversations.

Args:
    content: The fact or note to remember.
    persistent: Keep it in view at all times instead of only in the archive.`,
			Args: storeArgs{},
			Call: t.storeMemory,
		},
		{
			Name: "edit_memory",
			Doc: `Rewrite a stored memory.

Args:
    id: The memory ID.
    content: The replacement text.`,
			Args: editArgs{},
			Call: t.editMemory,
		},
		{
			Name: "delete_memory",
			Doc: `Forget a stored memory.

Args:
    id: The memory ID.`,
			Args: deleteArgs{},
			Call: t.deleteMemory,
		},
		{
			Name: "get_memories",
			Doc: `List memories from a range of past days. This is your only record of earlier conversations.

Args:
    from_days_ago: How many days back the range starts. 30 covers the last month.
    to_days_ago: How many days back the range ends. 0 means up to today, 1 up to yesterday.`,
			Args: historyArgs{},
			Call: t.getMemories,
		},
		{
			Name: "search_within_memories",
			Doc: `Find memories containing a phrase.

Args:
    phrase: The text to look for.`,
			Args: searchArgs{},
			Call: t.searchMemories,
		},
	}
}

type storeArgs struct {
	Content    string `json:"content"`
	Persistent bool   `json:"persistent"`
}

type editArgs struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type deleteArgs struct {
	ID string `json:"id"`
}

type historyArgs struct {
	FromDaysAgo int `json:"from_days_ago"`
	ToDaysAgo   int `json:"to_days_ago"`
}

type searchArgs struct {
	Phrase string `json:"phrase"`
}

func (t *Toolset) storeMemory(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a storeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	r, err := t.store.Add(a.Content, a.Persistent)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Stored memory %s.", r.ID), nil
}

func (t *Toolset) editMemory(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a editArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if _, err := t.store.Edit(a.ID, a.Content); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Updated memory %s.", a.ID), nil
}

func (t *Toolset) deleteMemory(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a deleteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := t.store.Delete(a.ID); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Deleted memory %s.", a.ID), nil
}

func (t *Toolset) getMemories(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a historyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	records, err := t.store.History(a.FromDaysAgo, a.ToDaysAgo)
	if err != nil {
		return nil, err
	}
	return formatRecords(records), nil
}

func (t *Toolset) searchMemories(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Phrase == "" {
		return nil, fmt.Errorf("phrase is required")
	}
	records, err := t.store.Search(a.Phrase)
	if err != nil {
		return nil, err
	}
	return formatRecords(records), nil
}

func formatRecords(records []Record) string {
	if len(records) == 0 {
		return "No memories found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d memor(ies):\n", len(records))
	for _, r := range records {
		marker := ""
		if r.Persistent {
			marker = " [persistent]"
		}
		fmt.Fprintf(&b, "- %s (%s)%s: %s\n", r.ID, r.Date.Format(dateLayout), marker, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
