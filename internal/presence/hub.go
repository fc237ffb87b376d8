package presence

import (
	"encoding/json"
	"sync"
)

const sessionBufferSize = 16

// Message is one ephemeral awareness frame: cursor position, active color,
// join/leave notices. Nothing here is ever persisted.
type Message struct {
	Type       string          `json:"type"`
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId"`
	Cursor     json.RawMessage `json:"cursor,omitempty"`
	Color      string          `json:"color,omitempty"`
}

const (
	// MessageTypeAwareness carries cursor and color state.
	MessageTypeAwareness = "awareness"
	// MessageTypeJoin announces a session joining a document.
	MessageTypeJoin = "join"
	// MessageTypeLeave announces a session leaving a document.
	MessageTypeLeave = "leave"
)

// Session is one connected viewer of a document.
type Session struct {
	id         int64
	documentID string
	userID     string
	stream     chan Message
}

// UserID returns the session's user identifier.
func (s *Session) UserID() string {
	return s.userID
}

// Stream returns the session's outbound message channel.
func (s *Session) Stream() <-chan Message {
	return s.stream
}

// Hub fans awareness frames out to the sessions viewing each document.
// State is held in memory only and discarded on disconnect; there is no
// replay guarantee.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[int64]*Session
	nextID   int64
}

// NewHub returns an empty presence hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[int64]*Session)}
}

// Join registers a session for a document and announces it to the others.
func (h *Hub) Join(documentID, userID string) *Session {
	h.mu.Lock()
	h.nextID++
	session := &Session{
		id:         h.nextID,
		documentID: documentID,
		userID:     userID,
		stream:     make(chan Message, sessionBufferSize),
	}
	if _, ok := h.sessions[documentID]; !ok {
		h.sessions[documentID] = make(map[int64]*Session)
	}
	h.sessions[documentID][session.id] = session
	h.mu.Unlock()

	h.broadcast(Message{
		Type:       MessageTypeJoin,
		DocumentID: documentID,
		UserID:     userID,
	}, session.id)
	return session
}

// Leave removes a session, closes its stream, and announces the departure.
func (h *Hub) Leave(session *Session) {
	if session == nil {
		return
	}

	removed := false
	h.mu.Lock()
	sessions := h.sessions[session.documentID]
	if sessions != nil {
		if _, ok := sessions[session.id]; ok {
			delete(sessions, session.id)
			close(session.stream)
			removed = true
		}
		if len(sessions) == 0 {
			delete(h.sessions, session.documentID)
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}
	h.broadcast(Message{
		Type:       MessageTypeLeave,
		DocumentID: session.documentID,
		UserID:     session.userID,
	}, session.id)
}

// Publish fans an awareness frame from a session out to its document's
// other sessions. Slow receivers are skipped rather than blocked on.
func (h *Hub) Publish(session *Session, message Message) {
	if session == nil {
		return
	}
	message.DocumentID = session.documentID
	message.UserID = session.userID
	if message.Type == "" {
		message.Type = MessageTypeAwareness
	}
	h.broadcast(message, session.id)
}

// Participants returns the user ids currently viewing a document.
func (h *Hub) Participants(documentID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := h.sessions[documentID]
	participants := make([]string, 0, len(sessions))
	for _, session := range sessions {
		participants = append(participants, session.userID)
	}
	return participants
}

// SessionCount returns the number of sessions viewing a document.
func (h *Hub) SessionCount(documentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[documentID])
}

func (h *Hub) broadcast(message Message, excludeID int64) {
	h.mu.RLock()
	sessions := h.sessions[message.DocumentID]
	targets := make([]*Session, 0, len(sessions))
	for _, session := range sessions {
		if session.id == excludeID {
			continue
		}
		targets = append(targets, session)
	}
	h.mu.RUnlock()

	for _, target := range targets {
		select {
		case target.stream <- message:
		default:
		}
	}
}
