package database

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists topics and messages as append-only JSON lines in a
// data directory, one file per record kind. Replay order equals append
// order, which is how hydration reconstructs arrival order.
type FileStore struct {
	topicsPath   string
	messagesPath string
}

type topicRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type messageRecord struct {
	ID       int64  `json:"id"`
	TopicID  int64  `json:"topicid"`
	User     string `json:"user"`
	Message  string `json:"message"`
	ParentID int64  `json:"parentid"`
	PostTime int64  `json:"posttime"`
}

// OpenFileStore creates the data directory if needed and returns a store
// backed by it.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{
		topicsPath:   filepath.Join(dir, "topics.jsonl"),
		messagesPath: filepath.Join(dir, "messages.jsonl"),
	}, nil
}

// Close is a no-op; files are opened per operation.
func (s *FileStore) Close() error {
	return nil
}

func appendLine(path string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func readLines(path string, visit func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := visit(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// AddTopic appends a topic record.
func (s *FileStore) AddTopic(topic *Topic) error {
	return appendLine(s.topicsPath, topicRecord{ID: topic.ID, Name: topic.Name})
}

// GetAllTopics replays the topic log.
func (s *FileStore) GetAllTopics() ([]*Topic, error) {
	var topics []*Topic
	err := readLines(s.topicsPath, func(line []byte) error {
		var rec topicRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("corrupt topic record: %w", err)
		}
		topics = append(topics, &Topic{ID: rec.ID, Name: rec.Name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return topics, nil
}

// AddMessage appends a message record.
func (s *FileStore) AddMessage(msg *Message, topicID int64) error {
	return appendLine(s.messagesPath, messageRecord{
		ID:       msg.ID,
		TopicID:  topicID,
		User:     msg.Author,
		Message:  msg.Text,
		ParentID: msg.ParentID,
		PostTime: msg.PostTime,
	})
}

// GetAllMessagesForTopic replays the message log, keeping only the
// requested topic's records.
func (s *FileStore) GetAllMessagesForTopic(topicID int64) ([]*Message, error) {
	var messages []*Message
	err := readLines(s.messagesPath, func(line []byte) error {
		var rec messageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("corrupt message record: %w", err)
		}
		if rec.TopicID != topicID {
			return nil
		}
		messages = append(messages, &Message{
			ID:       rec.ID,
			TopicID:  rec.TopicID,
			Author:   rec.User,
			Text:     rec.Message,
			ParentID: rec.ParentID,
			PostTime: rec.PostTime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
