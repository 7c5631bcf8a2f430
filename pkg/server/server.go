package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qaboard/qaboard/pkg/database"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort         int
	MaxMessageLength int
	MaxHandleLength  int
	SeedTopics       []string
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:         9500,
		MaxMessageLength: 4096, // bytes
		MaxHandleLength:  64,   // bytes
	}
}

// event is one unit of work for the serializing loop. An event is fully
// processed, including every outbound send it triggers, before the next
// one is accepted. That single-writer discipline replaces locking for
// the registries and trees; it is a design requirement, not an accident.
type event interface{ event() }

type openEvent struct{ conn Conn }
type frameEvent struct{ data []byte }
type closeEvent struct{ conn Conn }

// createTopicEvent funnels HTTP topic creation through the loop so the
// registry keeps its single writer.
type createTopicEvent struct {
	name  string
	reply chan createTopicResult
}

type createTopicResult struct {
	topic *Topic
	err   error
}

// statsEvent reads a consistent snapshot of topic and session state for
// the HTTP surface.
type statsEvent struct {
	reply chan statsResult
}

type statsResult struct {
	sessions int
	topics   []TopicInfo
}

// TopicInfo is the read-only listing shape served by /topics.json.
type TopicInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Members  int    `json:"members"`
	Messages int    `json:"messages"`
}

func (openEvent) event()        {}
func (frameEvent) event()       {}
func (closeEvent) event()       {}
func (createTopicEvent) event() {}
func (statsEvent) event()       {}

// Server owns all session/topic state and dispatches protocol events.
type Server struct {
	store      database.Store
	sessions   *SessionRegistry
	topics     *TopicRegistry
	messageIDs *IDAllocator
	config     ServerConfig

	// conn -> session id, the transport's weak back-reference used to
	// resolve close events. Touched only on the event loop.
	conns map[Conn]int64

	events     chan event
	httpServer *http.Server
	shutdown   chan struct{}
	wg         sync.WaitGroup
	metrics    *Metrics
	startTime  time.Time
}

// NewServer creates a server, hydrates all topics and their trees from
// the store, and seeds the configured topics if the store was empty.
func NewServer(store database.Store, config ServerConfig) (*Server, error) {
	s := &Server{
		store:      store,
		sessions:   NewSessionRegistry(),
		topics:     NewTopicRegistry(),
		messageIDs: NewIDAllocator(),
		config:     config,
		conns:      make(map[Conn]int64),
		events:     make(chan event, 256),
		shutdown:   make(chan struct{}),
		startTime:  time.Now(),
	}

	if err := s.hydrate(); err != nil {
		return nil, fmt.Errorf("failed to hydrate from store: %w", err)
	}

	if s.topics.Count() == 0 {
		if err := s.seedTopics(); err != nil {
			return nil, fmt.Errorf("failed to seed topics: %w", err)
		}
	}

	return s, nil
}

// SetMetrics attaches Prometheus metrics to the server.
func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
	if metrics != nil {
		metrics.RecordActiveTopics(s.topics.Count())
	}
}

// EnableDebugLogging turns on debug diagnostics.
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
}

// hydrate loads every stored topic and its message tree. Message ids are
// reserved past the largest loaded id so new ids never collide.
func (s *Server) hydrate() error {
	topics, err := s.store.GetAllTopics()
	if err != nil {
		return err
	}

	for _, t := range topics {
		records, err := s.store.GetAllMessagesForTopic(t.ID)
		if err != nil {
			return fmt.Errorf("failed to load messages for topic %d: %w", t.ID, err)
		}

		nodes := make([]*MessageNode, len(records))
		maxID := int64(-1)
		for i, rec := range records {
			nodes[i] = &MessageNode{
				ID:       rec.ID,
				Author:   rec.Author,
				Text:     rec.Text,
				ParentID: rec.ParentID,
				TopicID:  rec.TopicID,
				PostTime: rec.PostTime,
			}
			if rec.ID > maxID {
				maxID = rec.ID
			}
		}

		tree := NewMessageTree()
		if err := tree.Hydrate(nodes); err != nil {
			errorLog.Printf("Topic %d (%s): skipped orphaned messages during hydration: %v", t.ID, t.Name, err)
		}

		s.topics.Restore(t.ID, t.Name, tree)
		// Reserve over the raw records, not the tree: a skipped orphan
		// still owns its persisted id.
		s.messageIDs.Reserve(maxID)
	}

	return nil
}

// seedTopics creates the configured topics on first run.
func (s *Server) seedTopics() error {
	for _, name := range s.config.SeedTopics {
		if _, err := s.CreateTopic(name); err != nil {
			return err
		}
	}
	return nil
}

// CreateTopic registers a new topic and writes it through to the store.
// Must run on the event loop (or before it starts); off-loop callers go
// through CreateTopicSync.
func (s *Server) CreateTopic(name string) (*Topic, error) {
	topic, err := s.topics.CreateTopic(name)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddTopic(&database.Topic{ID: topic.ID, Name: topic.Name}); err != nil {
		errorLog.Printf("Failed to persist topic %q: %v", name, err)
	}
	if s.metrics != nil {
		s.metrics.RecordActiveTopics(s.topics.Count())
	}
	return topic, nil
}

// Start begins accepting connections and processing events.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/topics.json", s.TopicsJSONHandler)
	mux.HandleFunc("/topics", s.CreateTopicHandler)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.wg.Add(1)
	go s.run()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("HTTP server listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	close(s.shutdown)

	if s.httpServer != nil {
		s.httpServer.Close()
	}

	s.wg.Wait()

	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[Conn]int64)

	return s.store.Close()
}

// run is the serializing event loop: the single writer for every
// registry and tree.
func (s *Server) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.shutdown:
			return
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Server) dispatch(ev event) {
	switch e := ev.(type) {
	case openEvent:
		s.handleOpen(e.conn)
	case frameEvent:
		s.handleFrame(e.data)
	case closeEvent:
		s.handleClose(e.conn)
	case createTopicEvent:
		topic, err := s.CreateTopic(e.name)
		e.reply <- createTopicResult{topic: topic, err: err}
	case statsEvent:
		e.reply <- statsResult{
			sessions: s.sessions.Count(),
			topics:   s.topicInfos(),
		}
	}
}

func (s *Server) topicInfos() []TopicInfo {
	topics := s.topics.All()
	infos := make([]TopicInfo, 0, len(topics))
	for _, t := range topics {
		infos = append(infos, TopicInfo{
			ID:       t.ID,
			Name:     t.Name,
			Slug:     t.Slug,
			Members:  t.MemberCount(),
			Messages: t.Tree.Len(),
		})
	}
	return infos
}

// CreateTopicSync creates a topic from outside the event loop.
func (s *Server) CreateTopicSync(name string) (*Topic, error) {
	reply := make(chan createTopicResult, 1)
	select {
	case s.events <- createTopicEvent{name: name, reply: reply}:
	case <-s.shutdown:
		return nil, fmt.Errorf("server is shutting down")
	}
	select {
	case res := <-reply:
		return res.topic, res.err
	case <-s.shutdown:
		// The loop may exit with the event still queued; don't leave
		// the caller waiting on a reply that will never come.
		return nil, fmt.Errorf("server is shutting down")
	}
}

// Stats returns a loop-consistent snapshot for the HTTP surface.
func (s *Server) Stats() (int, []TopicInfo) {
	reply := make(chan statsResult, 1)
	select {
	case s.events <- statsEvent{reply: reply}:
	case <-s.shutdown:
		return 0, nil
	}
	select {
	case res := <-reply:
		return res.sessions, res.topics
	case <-s.shutdown:
		return 0, nil
	}
}

// Connect enqueues a connection-open event. Called by the transport.
func (s *Server) Connect(conn Conn) {
	s.enqueue(openEvent{conn: conn})
}

// Receive enqueues one raw inbound frame. Called by the transport.
func (s *Server) Receive(data []byte) {
	s.enqueue(frameEvent{data: data})
}

// Disconnect enqueues a connection-close event. Called by the transport.
func (s *Server) Disconnect(conn Conn) {
	s.enqueue(closeEvent{conn: conn})
}

func (s *Server) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.shutdown:
	}
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}
