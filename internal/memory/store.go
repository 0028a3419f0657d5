// Package memory keeps the agent's long-lived notes: dated records the
// model stores, edits, and searches across sessions.
package memory

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marlowe-agent/marlowe/internal/storage"
)

// Record is one remembered note. Persistent records are woven into
// every system prompt; the rest are only found by search and history.
type Record struct {
	ID         string    `msgpack:"id"`
	Date       time.Time `msgpack:"date"`
	Content    string    `msgpack:"content"`
	Persistent bool      `msgpack:"persistent"`
}

// relativeRewrites anchors relative time phrases before a record is
// written, so "today" still reads correctly weeks later. Matching is
// case-insensitive and runs in order.
var relativeRewrites = []struct {
	phrase *regexp.Regexp
	with   string
}{
	{regexp.MustCompile(`(?i)today`), "on this day"},
	{regexp.MustCompile(`(?i)yesterday`), "the day before this day"},
	{regexp.MustCompile(`(?i)now`), "at the time"},
	{regexp.MustCompile(`(?i)tomorrow`), "the day after this day"},
	{regexp.MustCompile(`(?i)last week`), "a week before this day"},
	{regexp.MustCompile(`(?i)next week`), "a week after this day"},
}

func rewriteRelative(content string) string {
	for _, r := range relativeRewrites {
		content = r.phrase.ReplaceAllString(content, r.with)
	}
	return content
}

// Store reads and writes memory records through a whole-file snapshot.
type Store struct {
	logger *slog.Logger
	file   *storage.File[Record]
}

func NewStore(logger *slog.Logger, file *storage.File[Record]) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger.With("component", "memory"),
		file:   file,
	}
}

// Add stores a new record and returns it. Relative time phrases in the
// content are anchored to the storage date first.
func (s *Store) Add(content string, persistent bool) (Record, error) {
	if strings.TrimSpace(content) == "" {
		return Record{}, fmt.Errorf("content is empty")
	}
	records, err := s.file.Load()
	if err != nil {
		return Record{}, fmt.Errorf("load memories: %w", err)
	}
	r := Record{
		ID:         uuid.NewString(),
		Date:       time.Now(),
		Content:    rewriteRelative(content),
		Persistent: persistent,
	}
	if err := s.file.Save(append(records, r)); err != nil {
		return Record{}, fmt.Errorf("save memories: %w", err)
	}
	s.logger.Info("memory stored", "id", r.ID, "persistent", persistent)
	return r, nil
}

// Edit replaces the content of a record, keeping its date and flags.
func (s *Store) Edit(id, content string) (Record, error) {
	records, err := s.file.Load()
	if err != nil {
		return Record{}, fmt.Errorf("load memories: %w", err)
	}
	for i := range records {
		if records[i].ID == id {
			records[i].Content = rewriteRelative(content)
			if err := s.file.Save(records); err != nil {
				return Record{}, fmt.Errorf("save memories: %w", err)
			}
			s.logger.Info("memory edited", "id", id)
			return records[i], nil
		}
	}
	return Record{}, fmt.Errorf("no memory with id %s", id)
}

// Delete removes a record by ID.
func (s *Store) Delete(id string) error {
	records, err := s.file.Load()
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return fmt.Errorf("no memory with id %s", id)
	}
	if err := s.file.Save(kept); err != nil {
		return fmt.Errorf("save memories: %w", err)
	}
	s.logger.Info("memory deleted", "id", id)
	return nil
}

// All returns every record, oldest first.
func (s *Store) All() ([]Record, error) {
	return s.file.Load()
}

// History returns the non-persistent records dated within the day
// range [fromDaysAgo, toDaysAgo] relative to today, inclusive on both
// ends. Persistent records are excluded; they surface through the
// system prompt instead.
func (s *Store) History(fromDaysAgo, toDaysAgo int) ([]Record, error) {
	records, err := s.file.Load()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	oldest := day(now.AddDate(0, 0, -fromDaysAgo))
	newest := day(now.AddDate(0, 0, -toDaysAgo))
	var out []Record
	for _, r := range records {
		if r.Persistent {
			continue
		}
		d := day(r.Date)
		if d.Before(oldest) || d.After(newest) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// day truncates a time to its calendar date.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Search returns the records whose content contains the phrase,
// case-insensitively.
func (s *Store) Search(phrase string) ([]Record, error) {
	records, err := s.file.Load()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(phrase)
	var out []Record
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Content), needle) {
			out = append(out, r)
		}
	}
	return out, nil
}

// PersistentMemories returns the contents of persistent records for
// the system prompt. Load failures degrade to an empty list.
func (s *Store) PersistentMemories() []string {
	records, err := s.file.Load()
	if err != nil {
		s.logger.Error("load memories for prompt", "error", err)
		return nil
	}
	var out []string
	for _, r := range records {
		if r.Persistent {
			out = append(out, r.Content)
		}
	}
	return out
}
