package server

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTopicExists indicates a topic with the same name already exists.
	ErrTopicExists = errors.New("topic already exists")
	// ErrTopicNotFound indicates the topic id or slug is unknown.
	ErrTopicNotFound = errors.New("topic not found")
)

// Topic is one independently addressable discussion scope with its own
// membership and message tree. Topics are never deleted.
type Topic struct {
	ID      int64
	Name    string
	Slug    string
	Tree    *MessageTree
	members map[int64]struct{}
}

// Members returns the current member session ids. Order is unspecified.
func (t *Topic) Members() []int64 {
	out := make([]int64, 0, len(t.members))
	for id := range t.members {
		out = append(out, id)
	}
	return out
}

// HasMember reports whether the session is a member of the topic.
func (t *Topic) HasMember(sessionID int64) bool {
	_, ok := t.members[sessionID]
	return ok
}

// MemberCount returns the number of current members.
func (t *Topic) MemberCount() int {
	return len(t.members)
}

// Slugify derives the addressing slug from a topic name. Deliberately
// naive (spaces become dashes, nothing else): two distinct names can
// collide on slug, and lookup resolves to the first-registered topic.
func Slugify(name string) string {
	return strings.ReplaceAll(name, " ", "-")
}

// TopicRegistry owns all topics. Not safe for concurrent use; every
// mutation happens on the event loop.
type TopicRegistry struct {
	topics map[int64]*Topic
	order  []int64 // creation order, for deterministic listing and slug lookup
	ids    *IDAllocator
}

// NewTopicRegistry creates an empty registry with its own id allocator.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[int64]*Topic),
		ids:    NewIDAllocator(),
	}
}

// CreateTopic registers a new topic with an empty tree. Name uniqueness
// is enforced with a linear scan; this holds up fine at the scale the
// registry is built for.
func (r *TopicRegistry) CreateTopic(name string) (*Topic, error) {
	for _, id := range r.order {
		if r.topics[id].Name == name {
			return nil, fmt.Errorf("%w: %q", ErrTopicExists, name)
		}
	}
	topic := &Topic{
		ID:      r.ids.Next(),
		Name:    name,
		Slug:    Slugify(name),
		Tree:    NewMessageTree(),
		members: make(map[int64]struct{}),
	}
	r.topics[topic.ID] = topic
	r.order = append(r.order, topic.ID)
	return topic, nil
}

// Restore re-registers a topic loaded from the store, keeping its
// original id. The id allocator is advanced past it.
func (r *TopicRegistry) Restore(id int64, name string, tree *MessageTree) *Topic {
	topic := &Topic{
		ID:      id,
		Name:    name,
		Slug:    Slugify(name),
		Tree:    tree,
		members: make(map[int64]struct{}),
	}
	r.topics[topic.ID] = topic
	r.order = append(r.order, topic.ID)
	r.ids.Reserve(id)
	return topic
}

// Get returns a topic by id.
func (r *TopicRegistry) Get(topicID int64) (*Topic, bool) {
	topic, ok := r.topics[topicID]
	return topic, ok
}

// FindBySlug returns the first-registered topic whose slug matches.
func (r *TopicRegistry) FindBySlug(slug string) (*Topic, bool) {
	for _, id := range r.order {
		if r.topics[id].Slug == slug {
			return r.topics[id], true
		}
	}
	return nil, false
}

// All returns every topic in creation order.
func (r *TopicRegistry) All() []*Topic {
	out := make([]*Topic, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.topics[id])
	}
	return out
}

// Count returns the number of registered topics.
func (r *TopicRegistry) Count() int {
	return len(r.topics)
}

// AddMember records the session as a member of the topic.
func (r *TopicRegistry) AddMember(topicID, sessionID int64) error {
	topic, ok := r.topics[topicID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTopicNotFound, topicID)
	}
	topic.members[sessionID] = struct{}{}
	return nil
}

// RemoveMember drops the session from the topic's member set. A no-op
// if the topic or the membership is already absent.
func (r *TopicRegistry) RemoveMember(topicID, sessionID int64) {
	topic, ok := r.topics[topicID]
	if !ok {
		return
	}
	delete(topic.members, sessionID)
}
