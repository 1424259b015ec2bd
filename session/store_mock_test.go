package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"collab-space/core"
)

// mockStore implements core.SnapshotStore with call counting and injectable
// errors.
type mockStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time

	gets    int
	puts    int
	deletes int

	getErr error
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (m *mockStore) Get(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[id]
	if !ok {
		return nil, core.ErrSnapshotNotFound
	}
	return data, nil
}

func (m *mockStore) Put(ctx context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[id] = data
	m.modified[id] = time.Now()
	return nil
}

func (m *mockStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.objects, id)
	delete(m.modified, id)
	return nil
}

func (m *mockStore) List(ctx context.Context) ([]core.SnapshotInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]core.SnapshotInfo, 0, len(m.objects))
	for id := range m.objects {
		infos = append(infos, core.SnapshotInfo{ID: id, LastModified: m.modified[id]})
	}
	return infos, nil
}

func (m *mockStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *mockStore) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func (m *mockStore) snapshot(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[id]
	return data, ok
}

func (m *mockStore) setGetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

func (m *mockStore) setPutErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
