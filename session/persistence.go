package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"collab-space/core"
	"collab-space/crdt"

	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a document must stay quiet after a mutation
// before its state is written back to the store.
const DefaultDebounce = 2 * time.Second

type pendingWrite struct {
	timer *time.Timer
	doc   *crdt.Doc
}

// Persister mediates between live sessions and the snapshot store. It
// hydrates a document when its session is created and schedules debounced
// full-state write-backs on every mutation. Write-backs for a given document
// never run concurrently with each other.
type Persister struct {
	store    core.SnapshotStore
	debounce time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingWrite
	canceled map[string]struct{}
	writing  map[string]*sync.Mutex
}

// NewPersister creates a Persister writing through to the given store. A
// non-positive debounce falls back to DefaultDebounce.
func NewPersister(store core.SnapshotStore, debounce time.Duration) *Persister {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Persister{
		store:    store,
		debounce: debounce,
		pending:  make(map[string]*pendingWrite),
		canceled: make(map[string]struct{}),
		writing:  make(map[string]*sync.Mutex),
	}
}

// Bind hydrates a freshly created document from its stored snapshot and hooks
// the document's update stream into the debounced write-back path. It runs
// once per session, before any client update is applied.
//
// A missing snapshot means a brand-new document. A snapshot that cannot be
// decoded starts the document empty rather than failing every connection for
// that id; the content is unrecoverable either way, so losing it is the
// least-bad option. Any other store error fails the bind so the caller does
// not serve an empty document over intact stored state.
func (p *Persister) Bind(ctx context.Context, id string, doc *crdt.Doc) error {
	log := logrus.WithField("document_id", id)

	p.mu.Lock()
	delete(p.canceled, id)
	p.mu.Unlock()

	data, err := p.store.Get(ctx, id)
	switch {
	case errors.Is(err, core.ErrSnapshotNotFound):
		log.Debug("No stored snapshot, starting empty")
	case err != nil:
		log.WithError(err).Error("Failed to load snapshot")
		return err
	default:
		if err := doc.ApplyUpdate(data); err != nil {
			log.WithError(err).Error("Stored snapshot is corrupt, starting empty")
		} else {
			log.WithField("snapshot_bytes", len(data)).Debug("Document hydrated")
		}
	}

	doc.OnUpdate(func([]byte) {
		p.Schedule(id, doc)
	})
	return nil
}

// Schedule arms, or re-arms, the debounce timer for a document. The write
// fires only after the document has been quiet for the full debounce
// interval, so rapid typing coalesces into a single store put.
func (p *Persister) Schedule(id string, doc *crdt.Doc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pw, ok := p.pending[id]; ok {
		pw.timer.Stop()
	}
	pw := &pendingWrite{doc: doc}
	pw.timer = time.AfterFunc(p.debounce, func() { p.fire(id, pw) })
	p.pending[id] = pw
}

func (p *Persister) fire(id string, pw *pendingWrite) {
	p.mu.Lock()
	if p.pending[id] != pw {
		// Superseded by a newer timer or canceled by eviction.
		p.mu.Unlock()
		return
	}
	delete(p.pending, id)
	p.mu.Unlock()

	if err := p.write(context.Background(), id, pw.doc); err != nil {
		// The next mutation re-arms a new attempt, so transient store
		// failures self-heal as long as edits keep coming.
		logrus.WithField("document_id", id).WithError(err).Error("Failed to persist document")
	}
}

// Flush writes the document's current state immediately, independent of the
// debounce timer. Any pending timer is dropped since its write would be
// redundant. Flush waits for an in-flight write to the same document before
// issuing its own.
func (p *Persister) Flush(ctx context.Context, id string, doc *crdt.Doc) error {
	p.mu.Lock()
	if pw, ok := p.pending[id]; ok {
		pw.timer.Stop()
		delete(p.pending, id)
	}
	p.mu.Unlock()

	return p.write(ctx, id, doc)
}

// Cancel drops any pending write for a document and marks it so no further
// write can fire. It blocks until an in-flight write, if any, has finished;
// once Cancel returns the store will not be touched for this id again until a
// new session is bound. Used by eviction so deleted content cannot be
// resurrected by a late timer.
func (p *Persister) Cancel(id string) {
	p.mu.Lock()
	if pw, ok := p.pending[id]; ok {
		pw.timer.Stop()
		delete(p.pending, id)
	}
	p.canceled[id] = struct{}{}
	lock := p.writeLock(id)
	p.mu.Unlock()

	// Taking and releasing the write lock waits out an in-flight write.
	lock.Lock()
	lock.Unlock() //nolint:staticcheck
}

func (p *Persister) write(ctx context.Context, id string, doc *crdt.Doc) error {
	p.mu.Lock()
	lock := p.writeLock(id)
	p.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	_, canceled := p.canceled[id]
	p.mu.Unlock()
	if canceled {
		return nil
	}

	return p.store.Put(ctx, id, doc.EncodeState())
}

// writeLock returns the per-document write serialization lock. Callers must
// hold p.mu.
func (p *Persister) writeLock(id string) *sync.Mutex {
	lock, ok := p.writing[id]
	if !ok {
		lock = &sync.Mutex{}
		p.writing[id] = lock
	}
	return lock
}
