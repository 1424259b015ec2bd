package memory

import (
	"context"
	"sync"
	"time"

	"collab-space/core"

	"github.com/sirupsen/logrus"
)

type object struct {
	data     []byte
	modified time.Time
}

// memStore implements core.SnapshotStore with an in-process map. Snapshots do
// not survive a restart; useful for development and tests.
type memStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{objects: make(map[string]object)}
}

func (s *memStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, core.ErrSnapshotNotFound
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (s *memStore) Put(ctx context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[id] = object{data: stored, modified: time.Now()}

	logrus.WithFields(logrus.Fields{
		"document_id": id,
		"data_length": len(data),
	}).Debug("Snapshot stored")
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, id)
	return nil
}

func (s *memStore) List(ctx context.Context) ([]core.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]core.SnapshotInfo, 0, len(s.objects))
	for id, obj := range s.objects {
		infos = append(infos, core.SnapshotInfo{ID: id, LastModified: obj.modified})
	}
	return infos, nil
}
