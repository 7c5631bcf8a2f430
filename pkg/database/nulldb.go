package database

// NullStore discards all writes and serves a fixed seed dataset: one
// topic with two sample questions. Useful for demos and for running the
// server without any persistence at all.
type NullStore struct{}

// NewNullStore returns a NullStore.
func NewNullStore() *NullStore {
	return &NullStore{}
}

// Close is a no-op.
func (s *NullStore) Close() error { return nil }

// AddTopic discards the topic.
func (s *NullStore) AddTopic(topic *Topic) error { return nil }

// AddMessage discards the message.
func (s *NullStore) AddMessage(msg *Message, topicID int64) error { return nil }

// GetAllTopics returns the single seed topic.
func (s *NullStore) GetAllTopics() ([]*Topic, error) {
	return []*Topic{{ID: 0, Name: "General"}}, nil
}

// GetAllMessagesForTopic returns the seed questions for the seed topic.
func (s *NullStore) GetAllMessagesForTopic(topicID int64) ([]*Message, error) {
	if topicID != 0 {
		return nil, nil
	}
	return []*Message{
		{
			ID:       0,
			TopicID:  0,
			Author:   "admin",
			Text:     "What do you think is the significance of coffee?",
			ParentID: -1,
			PostTime: 1397499660000,
		},
		{
			ID:       1,
			TopicID:  0,
			Author:   "admin",
			Text:     "How important are the bananas in Timbuktu?",
			ParentID: -1,
			PostTime: 1397503260000,
		},
	}, nil
}
