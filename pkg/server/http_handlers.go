package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// TopicsJSONHandler serves the topic directory as JSON.
func (s *Server) TopicsJSONHandler(w http.ResponseWriter, r *http.Request) {
	_, topics := s.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"topics": topics,
		"count":  len(topics),
	}); err != nil {
		errorLog.Printf("Error encoding topics JSON: %v", err)
	}
}

// CreateTopicHandler creates a topic from a form post. Topics are made
// over HTTP, not the socket protocol; the web page posts here and then
// joins over the socket.
func (s *Server) CreateTopicHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		http.Error(w, "Topic name required", http.StatusBadRequest)
		return
	}

	topic, err := s.CreateTopicSync(name)
	if err != nil {
		if errors.Is(err, ErrTopicExists) {
			http.Error(w, "Topic already exists", http.StatusConflict)
			return
		}
		errorLog.Printf("Failed to create topic %q: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"id":   topic.ID,
		"name": topic.Name,
		"slug": topic.Slug,
	}); err != nil {
		errorLog.Printf("Error encoding topic JSON: %v", err)
	}
}

// HealthHandler serves health check status
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	sessions, topics := s.Stats()

	health := map[string]interface{}{
		"status":          "healthy",
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"active_sessions": sessions,
		"topics":          len(topics),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		errorLog.Printf("Error encoding health JSON: %v", err)
	}
}
