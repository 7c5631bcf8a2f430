package database

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := OpenFileStore(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("failed to open file store: %v", err)
	}
	return store
}

func TestFileStoreReplayPreservesAppendOrder(t *testing.T) {
	store := newTestFileStore(t)

	msgs := []*Message{
		{ID: 5, Author: "user1", Text: "first appended", ParentID: -1, PostTime: 10},
		{ID: 2, Author: "user2", Text: "second appended", ParentID: 5, PostTime: 20},
		{ID: 9, Author: "user1", Text: "third appended", ParentID: -1, PostTime: 30},
	}
	for _, m := range msgs {
		if err := store.AddMessage(m, 0); err != nil {
			t.Fatalf("failed to append message %d: %v", m.ID, err)
		}
	}

	got, err := store.GetAllMessagesForTopic(0)
	if err != nil {
		t.Fatalf("failed to replay messages: %v", err)
	}

	if len(got) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(got))
	}
	for i := range msgs {
		if got[i].ID != msgs[i].ID {
			t.Fatalf("position %d: expected id %d, got %d", i, msgs[i].ID, got[i].ID)
		}
		if got[i].Text != msgs[i].Text {
			t.Fatalf("position %d: expected text %q, got %q", i, msgs[i].Text, got[i].Text)
		}
	}
}

func TestFileStoreFiltersByTopic(t *testing.T) {
	store := newTestFileStore(t)

	if err := store.AddMessage(&Message{ID: 0, Author: "a", Text: "topic zero", ParentID: -1}, 0); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := store.AddMessage(&Message{ID: 1, Author: "b", Text: "topic one", ParentID: -1}, 1); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	got, err := store.GetAllMessagesForTopic(1)
	if err != nil {
		t.Fatalf("failed to replay messages: %v", err)
	}
	if len(got) != 1 || got[0].Text != "topic one" || got[0].TopicID != 1 {
		t.Fatalf("expected only topic one's message, got %+v", got)
	}
}

func TestFileStoreTopicRoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	if err := store.AddTopic(&Topic{ID: 0, Name: "General"}); err != nil {
		t.Fatalf("failed to append topic: %v", err)
	}
	if err := store.AddTopic(&Topic{ID: 1, Name: "Cooking"}); err != nil {
		t.Fatalf("failed to append topic: %v", err)
	}

	got, err := store.GetAllTopics()
	if err != nil {
		t.Fatalf("failed to replay topics: %v", err)
	}
	if len(got) != 2 || got[0].Name != "General" || got[1].Name != "Cooking" {
		t.Fatalf("expected [General Cooking], got %+v", got)
	}
}

func TestFileStoreMissingFilesReadAsEmpty(t *testing.T) {
	store := newTestFileStore(t)

	topics, err := store.GetAllTopics()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 0 {
		t.Fatalf("expected no topics, got %d", len(topics))
	}

	msgs, err := store.GetAllMessagesForTopic(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestFileStoreRejectsCorruptRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("failed to open file store: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "topics.jsonl"), []byte("{broken\n"), 0644); err != nil {
		t.Fatalf("failed to plant corrupt record: %v", err)
	}

	if _, err := store.GetAllTopics(); err == nil {
		t.Fatal("expected error for corrupt topic record")
	}
}
