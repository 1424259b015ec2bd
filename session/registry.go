// Package session owns the live in-memory documents: the registry that maps
// document ids to their single process-wide session, and the persister that
// bridges those sessions to the durable snapshot store.
package session

import (
	"context"
	"sync"

	"collab-space/crdt"

	"github.com/sirupsen/logrus"
)

// Session is a live in-memory document instance. The registry guarantees at
// most one Session exists per document id at a time.
type Session struct {
	ID  string
	Doc *crdt.Doc

	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	subscribers int
}

// Done is closed when the session is evicted. Connection handlers watch it so
// deleting a document disconnects its editors.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// AddSubscriber records a new attached connection and returns the new count.
func (s *Session) AddSubscriber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers++
	return s.subscribers
}

// RemoveSubscriber records a detached connection and returns the new count.
// The session stays live at zero subscribers; documents remain warm in memory
// until they are deleted or the process shuts down.
func (s *Session) RemoveSubscriber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers > 0 {
		s.subscribers--
	}
	return s.subscribers
}

// Subscribers returns the current attached-connection count.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribers
}

type sessionEntry struct {
	session *Session
	ready   chan struct{}
	err     error
}

// Registry is the single source of truth for which documents are live. It
// serializes session creation per document id so concurrent callers racing on
// an unseen id share one hydration read and one Session instance.
type Registry struct {
	persister *Persister

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewRegistry creates an empty registry backed by the given persister.
func NewRegistry(persister *Persister) *Registry {
	return &Registry{
		persister: persister,
		sessions:  make(map[string]*sessionEntry),
	}
}

// GetOrCreate returns the live session for a document, creating and hydrating
// one if none exists. The first caller for an id performs the hydration;
// concurrent callers block until it completes and receive the same instance.
// If hydration fails the entry is removed so a later call can retry.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	if entry, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		<-entry.ready
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.session, nil
	}

	entry := &sessionEntry{
		session: &Session{ID: id, Doc: crdt.NewDoc(), done: make(chan struct{})},
		ready:   make(chan struct{}),
	}
	r.sessions[id] = entry
	r.mu.Unlock()

	entry.err = r.persister.Bind(ctx, id, entry.session.Doc)
	if entry.err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
	} else {
		logrus.WithField("document_id", id).Info("Session created")
	}
	close(entry.ready)

	if entry.err != nil {
		return nil, entry.err
	}
	return entry.session, nil
}

// Get returns the live session for a document, or nil if the document is not
// live. It never creates a session. If a creation is in flight Get waits for
// it so callers never observe a half-hydrated document.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	<-entry.ready
	if entry.err != nil {
		return nil
	}
	return entry.session
}

// Evict removes a document's session and cancels any pending write-back so no
// write fires for the document after eviction. Evicting an id with no live
// session is a no-op. Used only by deletion; ordinary disconnects leave the
// session warm.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	<-entry.ready
	r.persister.Cancel(id)
	entry.session.close()
	logrus.WithField("document_id", id).Info("Session evicted")
}

// FlushAll immediately writes back every live document. Used at graceful
// shutdown so the accepted data-loss window closes with the process.
func (r *Registry) FlushAll(ctx context.Context) {
	r.ForEach(func(s *Session) {
		if err := r.persister.Flush(ctx, s.ID, s.Doc); err != nil {
			logrus.WithField("document_id", s.ID).WithError(err).Error("Failed to flush document")
		}
	})
}

// ForEach calls fn for every live session. Used by graceful shutdown to flush
// all in-memory state.
func (r *Registry) ForEach(fn func(*Session)) {
	r.mu.Lock()
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for _, entry := range r.sessions {
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		<-entry.ready
		if entry.err == nil {
			fn(entry.session)
		}
	}
}
