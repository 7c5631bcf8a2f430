package database

import (
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteTopicRoundTrip(t *testing.T) {
	store := newTestSQLite(t)

	want := []*Topic{
		{ID: 0, Name: "General"},
		{ID: 1, Name: "Astronomy"},
	}
	for _, topic := range want {
		if err := store.AddTopic(topic); err != nil {
			t.Fatalf("failed to add topic %q: %v", topic.Name, err)
		}
	}

	got, err := store.GetAllTopics()
	if err != nil {
		t.Fatalf("failed to load topics: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d topics, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Name != want[i].Name {
			t.Fatalf("topic %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestSQLiteMessagesOrderedAndScopedByTopic(t *testing.T) {
	store := newTestSQLite(t)

	if err := store.AddTopic(&Topic{ID: 0, Name: "General"}); err != nil {
		t.Fatalf("failed to add topic: %v", err)
	}
	if err := store.AddTopic(&Topic{ID: 1, Name: "Astronomy"}); err != nil {
		t.Fatalf("failed to add topic: %v", err)
	}

	msgs := []*Message{
		{ID: 2, Author: "user1", Text: "later root", ParentID: -1, PostTime: 300},
		{ID: 0, Author: "user1", Text: "first question", ParentID: -1, PostTime: 100},
		{ID: 1, Author: "user2", Text: "a reply", ParentID: 0, PostTime: 200},
	}
	for _, m := range msgs {
		if err := store.AddMessage(m, 0); err != nil {
			t.Fatalf("failed to add message %d: %v", m.ID, err)
		}
	}
	if err := store.AddMessage(&Message{ID: 3, Author: "user3", Text: "stars", ParentID: -1, PostTime: 400}, 1); err != nil {
		t.Fatalf("failed to add message: %v", err)
	}

	got, err := store.GetAllMessagesForTopic(0)
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 messages for topic 0, got %d", len(got))
	}
	for i, m := range got {
		if m.ID != int64(i) {
			t.Fatalf("expected messages in id order, got id %d at position %d", m.ID, i)
		}
		if m.TopicID != 0 {
			t.Fatalf("expected topic id 0, got %d", m.TopicID)
		}
	}

	if got[1].Author != "user2" || got[1].Text != "a reply" || got[1].ParentID != 0 || got[1].PostTime != 200 {
		t.Fatalf("message fields did not survive round trip: %+v", got[1])
	}
}

func TestSQLiteEmptyDatabaseReadsCleanly(t *testing.T) {
	store := newTestSQLite(t)

	topics, err := store.GetAllTopics()
	if err != nil {
		t.Fatalf("failed to load topics from fresh database: %v", err)
	}
	if len(topics) != 0 {
		t.Fatalf("expected no topics, got %d", len(topics))
	}

	msgs, err := store.GetAllMessagesForTopic(0)
	if err != nil {
		t.Fatalf("failed to load messages from fresh database: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := store.AddTopic(&Topic{ID: 0, Name: "General"}); err != nil {
		t.Fatalf("failed to add topic: %v", err)
	}
	if err := store.AddMessage(&Message{ID: 0, Author: "user1", Text: "hi", ParentID: -1, PostTime: 50}, 0); err != nil {
		t.Fatalf("failed to add message: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer reopened.Close()

	topics, err := reopened.GetAllTopics()
	if err != nil {
		t.Fatalf("failed to load topics: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "General" {
		t.Fatalf("expected [General], got %+v", topics)
	}

	msgs, err := reopened.GetAllMessagesForTopic(0)
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("expected the stored message, got %+v", msgs)
	}
}
