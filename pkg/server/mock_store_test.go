package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/qaboard/qaboard/pkg/database"
)

// initTestLoggers discards log output during tests
func initTestLoggers(t *testing.T) {
	t.Helper()
	errorLog = log.New(io.Discard, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
}

// fakeStore is an in-memory Store that records write-throughs and can
// serve a preloaded dataset for hydration tests.
type fakeStore struct {
	topics   []*database.Topic
	messages map[int64][]*database.Message

	addedTopics   []*database.Topic
	addedMessages []*database.Message

	failWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[int64][]*database.Message)}
}

func (s *fakeStore) AddTopic(topic *database.Topic) error {
	if s.failWrites {
		return errors.New("store write failed")
	}
	s.addedTopics = append(s.addedTopics, topic)
	return nil
}

func (s *fakeStore) GetAllTopics() ([]*database.Topic, error) {
	return s.topics, nil
}

func (s *fakeStore) AddMessage(msg *database.Message, topicID int64) error {
	if s.failWrites {
		return errors.New("store write failed")
	}
	s.addedMessages = append(s.addedMessages, msg)
	return nil
}

func (s *fakeStore) GetAllMessagesForTopic(topicID int64) ([]*database.Message, error) {
	return s.messages[topicID], nil
}

func (s *fakeStore) Close() error { return nil }

// mockConn records every frame the server delivers, decoded to a map.
type mockConn struct {
	frames  []map[string]interface{}
	failing bool
	closed  bool
}

func (c *mockConn) WriteText(data []byte) error {
	if c.failing {
		return errors.New("connection closed")
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	c.frames = append(c.frames, decoded)
	return nil
}

func (c *mockConn) Close() error {
	c.closed = true
	return nil
}

// kinds returns the mtype of every recorded frame, in delivery order.
func (c *mockConn) kinds() []string {
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i], _ = f["mtype"].(string)
	}
	return out
}

// lastOfKind returns the most recent frame of the given kind.
func (c *mockConn) lastOfKind(kind string) map[string]interface{} {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i]["mtype"] == kind {
			return c.frames[i]
		}
	}
	return nil
}

func (c *mockConn) countOfKind(kind string) int {
	n := 0
	for _, f := range c.frames {
		if f["mtype"] == kind {
			n++
		}
	}
	return n
}

func (c *mockConn) reset() {
	c.frames = nil
}

// testServer creates a server over a fake store, loop not running: tests
// drive handleOpen/handleFrame/handleClose directly, which matches the
// single-threaded execution model.
func testServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	initTestLoggers(t)

	store := newFakeStore()
	srv, err := NewServer(store, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}
	return srv, store
}

// connectSession opens a connection and returns its session and conn.
func connectSession(t *testing.T, srv *Server) (*Session, *mockConn) {
	t.Helper()
	conn := &mockConn{}
	srv.handleOpen(conn)

	welcome := conn.lastOfKind("myhandle")
	if welcome == nil {
		t.Fatalf("No myhandle welcome received")
	}
	sessionID := int64(welcome["userid"].(float64))
	sess, ok := srv.sessions.Get(sessionID)
	if !ok {
		t.Fatalf("Session %d not registered", sessionID)
	}
	conn.reset()
	return sess, conn
}

// frame builds an inbound frame for the session with valid auth.
func frame(t *testing.T, sess *Session, kind string, fields map[string]interface{}) []byte {
	t.Helper()
	payload := map[string]interface{}{
		"mtype": kind,
		"id":    sess.ID,
		"auth":  sess.AuthToken,
	}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}
	return data
}

// joinTopicForTest joins a session to a topic via the protocol.
func joinTopicForTest(t *testing.T, srv *Server, sess *Session, topicID int64) {
	t.Helper()
	srv.handleFrame(frame(t, sess, "settopic", map[string]interface{}{"topicid": topicID}))
	if sess.TopicID != topicID {
		t.Fatalf("Session %d failed to join topic %d", sess.ID, topicID)
	}
}
