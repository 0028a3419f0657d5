package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marlowe-agent/marlowe/internal/storage"
	"github.com/marlowe-agent/marlowe/internal/tools"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	file, err := storage.NewFile[Record](filepath.Join(t.TempDir(), "memories.msgpack"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	return NewStore(nil, file)
}

func TestAddAndAll(t *testing.T) {
	s := newTestStore(t)

	r, err := s.Add("the user's cat is named Biscuit", false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.ID == "" {
		t.Error("record should get an ID")
	}
	if r.Date.IsZero() {
		t.Error("record should get a date")
	}

	if _, err := s.Add("   ", false); err == nil {
		t.Error("blank content should be rejected")
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("records = %d, want 1", len(all))
	}
}

func TestEdit(t *testing.T) {
	s := newTestStore(t)
	r, _ := s.Add("original", true)

	edited, err := s.Edit(r.ID, "revised")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Content != "revised" {
		t.Errorf("content = %q", edited.Content)
	}
	if !edited.Persistent {
		t.Error("editing should keep the persistent flag")
	}

	if _, err := s.Edit("missing", "x"); err == nil {
		t.Error("editing an unknown ID should fail")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	r, _ := s.Add("ephemeral", false)

	if err := s.Delete(r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(r.ID); err == nil {
		t.Error("deleting twice should fail")
	}

	all, _ := s.All()
	if len(all) != 0 {
		t.Errorf("records = %d after delete, want 0", len(all))
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	s.Add("The user prefers Black Coffee", false)
	s.Add("meeting moved to friday", false)

	found, err := s.Search("black coffee")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found = %d, want case-insensitive match", len(found))
	}

	none, _ := s.Search("tea")
	if len(none) != 0 {
		t.Errorf("found = %d for absent phrase", len(none))
	}
}

func TestHistory(t *testing.T) {
	s := newTestStore(t)
	old := Record{ID: "old", Date: time.Now().AddDate(0, 0, -5), Content: "five days back"}
	fresh := Record{ID: "fresh", Date: time.Now(), Content: "from this morning"}
	sticky := Record{ID: "sticky", Date: time.Now(), Content: "evergreen", Persistent: true}
	if err := s.file.Save([]Record{old, fresh, sticky}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.History(30, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want the dated records only", len(got))
	}
	for _, r := range got {
		if r.Persistent {
			t.Error("persistent records do not belong in dated history")
		}
	}

	upToYesterday, _ := s.History(30, 1)
	if len(upToYesterday) != 1 || upToYesterday[0].ID != "old" {
		t.Errorf("up-to-yesterday = %+v, want only the older record", upToYesterday)
	}

	singleDay, _ := s.History(5, 5)
	if len(singleDay) != 1 || singleDay[0].ID != "old" {
		t.Errorf("single-day = %+v", singleDay)
	}

	recent, _ := s.History(3, 0)
	if len(recent) != 1 || recent[0].ID != "fresh" {
		t.Errorf("recent window = %+v", recent)
	}
}

func TestRelativePhrasesAnchored(t *testing.T) {
	s := newTestStore(t)

	r, err := s.Add("User said TODAY that the package arrives tomorrow", false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := "User said on this day that the package arrives the day after this day"
	if r.Content != want {
		t.Errorf("stored content = %q, want %q", r.Content, want)
	}

	edited, err := s.Edit(r.ID, "Rescheduled to next week")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Content != "Rescheduled to a week after this day" {
		t.Errorf("edited content = %q", edited.Content)
	}
}

func TestPersistentMemories(t *testing.T) {
	s := newTestStore(t)
	s.Add("sticky fact", true)
	s.Add("passing note", false)

	got := s.PersistentMemories()
	if len(got) != 1 || got[0] != "sticky fact" {
		t.Errorf("persistent = %v", got)
	}
}

func TestToolsetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	r := tools.NewRegistry(nil)
	r.Register(NewToolset(s))
	inv := &tools.Invocation{Channel: "cli"}
	ctx := context.Background()

	out, err := r.Invoke(ctx, inv, "store_memory", json.RawMessage(`{"content":"the door code is 4821","persistent":false}`))
	if err != nil {
		t.Fatalf("store_memory: %v", err)
	}
	id := strings.TrimSuffix(strings.TrimPrefix(out, "Stored memory "), ".")

	out, err = r.Invoke(ctx, inv, "search_within_memories", json.RawMessage(`{"phrase":"door code"}`))
	if err != nil {
		t.Fatalf("search_within_memories: %v", err)
	}
	if !strings.Contains(out, "4821") {
		t.Errorf("search output = %q", out)
	}

	if _, err := r.Invoke(ctx, inv, "edit_memory", json.RawMessage(`{"id":"`+id+`","content":"the door code is 9000"}`)); err != nil {
		t.Fatalf("edit_memory: %v", err)
	}

	out, err = r.Invoke(ctx, inv, "get_memories", json.RawMessage(`{"from_days_ago":1,"to_days_ago":0}`))
	if err != nil {
		t.Fatalf("get_memories: %v", err)
	}
	if !strings.Contains(out, "9000") {
		t.Errorf("get_memories output = %q", out)
	}

	if _, err := r.Invoke(ctx, inv, "delete_memory", json.RawMessage(`{"id":"`+id+`"}`)); err != nil {
		t.Fatalf("delete_memory: %v", err)
	}
	out, _ = r.Invoke(ctx, inv, "get_memories", json.RawMessage(`{"from_days_ago":1,"to_days_ago":0}`))
	if out != "No memories found." {
		t.Errorf("after delete = %q", out)
	}
}
