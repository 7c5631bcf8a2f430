// Package database provides durable persistence for topics and messages.
// The server consults it only at startup (hydration) and on write-through
// when a topic or message is created.
package database

import (
	"errors"
	"fmt"
)

// ErrUnknownBackend indicates an unrecognized store backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendNull   = "null"
)

// Topic is the persisted form of a topic.
type Topic struct {
	ID   int64
	Name string
}

// Message is the persisted form of a message node.
type Message struct {
	ID       int64
	TopicID  int64
	Author   string
	Text     string
	ParentID int64
	PostTime int64 // milliseconds since epoch
}

// Store is the narrow persistence contract the server depends on. All
// methods are synchronous: they complete before the event loop moves to
// the next event.
type Store interface {
	AddTopic(topic *Topic) error
	GetAllTopics() ([]*Topic, error)
	AddMessage(msg *Message, topicID int64) error
	GetAllMessagesForTopic(topicID int64) ([]*Message, error)
	Close() error
}

// Open creates a store for the named backend. path is the database file
// for sqlite, the data directory for file, and ignored for null.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendFile:
		return OpenFileStore(path)
	case BackendNull:
		return NewNullStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
