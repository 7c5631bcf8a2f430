package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists topics and messages in a single SQLite file.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database at the given path.
// The schema is not created eagerly; each operation lazily creates it
// once and retries on the first failure (see withSchemaRetry).
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer, a few readers. WAL lets them coexist.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &SQLiteStore{conn: conn}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS Topic (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS Message (
	id INTEGER PRIMARY KEY,
	topic_id INTEGER NOT NULL,
	author TEXT NOT NULL,
	content TEXT NOT NULL,
	parent_id INTEGER NOT NULL,
	post_time INTEGER NOT NULL,
	FOREIGN KEY (topic_id) REFERENCES Topic(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_message_topic ON Message(topic_id, id);
`
	_, err := s.conn.Exec(schema)
	return err
}

// withSchemaRetry runs op; on failure it creates the schema once and
// retries. A second failure is fatal to the operation and surfaced to
// the process log by the caller, never to a client.
func (s *SQLiteStore) withSchemaRetry(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if schemaErr := s.initSchema(); schemaErr != nil {
		log.Printf("database: schema creation failed: %v", schemaErr)
		return err
	}
	return op()
}

// AddTopic writes a topic through to the database.
func (s *SQLiteStore) AddTopic(topic *Topic) error {
	return s.withSchemaRetry(func() error {
		_, err := s.conn.Exec(
			"INSERT INTO Topic (id, name) VALUES (?, ?)",
			topic.ID, topic.Name,
		)
		return err
	})
}

// GetAllTopics returns every stored topic in id order.
func (s *SQLiteStore) GetAllTopics() ([]*Topic, error) {
	var topics []*Topic
	err := s.withSchemaRetry(func() error {
		rows, err := s.conn.Query("SELECT id, name FROM Topic ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()

		topics = topics[:0]
		for rows.Next() {
			var t Topic
			if err := rows.Scan(&t.ID, &t.Name); err != nil {
				return err
			}
			topics = append(topics, &t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return topics, nil
}

// AddMessage writes a message through to the database.
func (s *SQLiteStore) AddMessage(msg *Message, topicID int64) error {
	return s.withSchemaRetry(func() error {
		_, err := s.conn.Exec(
			"INSERT INTO Message (id, topic_id, author, content, parent_id, post_time) VALUES (?, ?, ?, ?, ?, ?)",
			msg.ID, topicID, msg.Author, msg.Text, msg.ParentID, msg.PostTime,
		)
		return err
	})
}

// GetAllMessagesForTopic returns every stored message of a topic in id
// order, which is also arrival order.
func (s *SQLiteStore) GetAllMessagesForTopic(topicID int64) ([]*Message, error) {
	var messages []*Message
	err := s.withSchemaRetry(func() error {
		rows, err := s.conn.Query(
			"SELECT id, topic_id, author, content, parent_id, post_time FROM Message WHERE topic_id = ? ORDER BY id",
			topicID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		messages = messages[:0]
		for rows.Next() {
			var m Message
			if err := rows.Scan(&m.ID, &m.TopicID, &m.Author, &m.Text, &m.ParentID, &m.PostTime); err != nil {
				return err
			}
			messages = append(messages, &m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
