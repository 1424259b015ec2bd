package websocket

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collab-space/core"
	"collab-space/crdt"
	"collab-space/session"
	"collab-space/stores/memory"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const testDebounce = 25 * time.Millisecond

func newTestServer(t *testing.T) (*httptest.Server, *session.Registry, core.SnapshotStore) {
	t.Helper()
	store := memory.NewStore()
	registry := session.NewRegistry(session.NewPersister(store, testDebounce))
	h := NewHandler(registry)

	r := chi.NewRouter()
	r.Get("/ws/{documentID}", h.Handle())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry, store
}

func dial(t *testing.T, srv *httptest.Server, docID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + docID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(data) < 1 {
		t.Fatal("read an empty frame")
	}
	return data
}

func TestJoinReceivesFullState(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	sess, err := registry.GetOrCreate(context.Background(), "doc-A")
	if err != nil {
		t.Fatalf("GetOrCreate() failed: %v", err)
	}
	sess.Doc.Set(crdt.TitleField, "Notes")

	conn := dial(t, srv, "doc-A")
	data := readFrame(t, conn)
	if data[0] != FrameUpdate {
		t.Fatalf("first frame type = %d, want update", data[0])
	}

	replica := crdt.NewDoc()
	if err := replica.ApplyUpdate(data[1:]); err != nil {
		t.Fatalf("initial state frame does not decode: %v", err)
	}
	if title := replica.Title(); title == nil || *title != "Notes" {
		t.Errorf("replica title = %v, want Notes", title)
	}
}

func TestUpdateAppliedAndRelayed(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	editor := dial(t, srv, "doc-A")
	viewer := dial(t, srv, "doc-A")
	readFrame(t, editor) // initial state
	readFrame(t, viewer)

	local := crdt.NewDoc()
	local.Set("body", "hello")
	payload := local.EncodeState()
	msg := append([]byte{FrameUpdate}, payload...)
	if err := editor.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	relayed := readFrame(t, viewer)
	if relayed[0] != FrameUpdate || !bytes.Equal(relayed[1:], payload) {
		t.Error("viewer did not receive the relayed update")
	}

	sess := registry.Get("doc-A")
	if sess == nil {
		t.Fatal("no live session after connections")
	}
	if value, _ := sess.Doc.Get("body"); value != "hello" {
		t.Errorf("server document body = %q, want hello", value)
	}
}

func TestUpdatePersistsAfterDebounce(t *testing.T) {
	srv, _, store := newTestServer(t)

	editor := dial(t, srv, "doc-A")
	readFrame(t, editor)

	local := crdt.NewDoc()
	local.Set(crdt.TitleField, "Notes")
	msg := append([]byte{FrameUpdate}, local.EncodeState()...)
	if err := editor.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := store.Get(context.Background(), "doc-A")
		if err == nil {
			hydrated := crdt.NewDoc()
			if err := hydrated.ApplyUpdate(data); err != nil {
				t.Fatalf("stored snapshot does not decode: %v", err)
			}
			if title := hydrated.Title(); title == nil || *title != "Notes" {
				t.Errorf("stored title = %v, want Notes", title)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("update was never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAwarenessPassThrough(t *testing.T) {
	srv, _, _ := newTestServer(t)

	a := dial(t, srv, "doc-A")
	b := dial(t, srv, "doc-A")
	readFrame(t, a)
	readFrame(t, b)

	payload := []byte(`{"user":{"name":"ada","color":"#f00"}}`)
	msg := append([]byte{FrameAwareness}, payload...)
	if err := a.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readFrame(t, b)
	if got[0] != FrameAwareness || !bytes.Equal(got[1:], payload) {
		t.Error("awareness frame was not passed through unchanged")
	}
}

func TestConnectionsIsolatedPerDocument(t *testing.T) {
	srv, _, _ := newTestServer(t)

	a := dial(t, srv, "doc-A")
	b := dial(t, srv, "doc-B")
	readFrame(t, a)
	readFrame(t, b)

	local := crdt.NewDoc()
	local.Set("body", "only for doc-A")
	msg := append([]byte{FrameUpdate}, local.EncodeState()...)
	if err := a.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	b.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := b.ReadMessage(); err == nil {
		t.Errorf("doc-B connection received a doc-A frame: %v", data)
	}
}

func TestEvictionDisconnects(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	conn := dial(t, srv, "doc-A")
	readFrame(t, conn)

	registry.Evict("doc-A")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection closed, as expected
		}
	}
}
