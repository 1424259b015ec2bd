package crdt

import (
	"bytes"
	"testing"
)

func TestSetAndGet(t *testing.T) {
	doc := NewDoc()

	doc.Set("body", "hello")
	value, ok := doc.Get("body")
	if !ok {
		t.Fatal("Get() reported missing register after Set()")
	}
	if value != "hello" {
		t.Errorf("Get() = %q, want %q", value, "hello")
	}
}

func TestTitle(t *testing.T) {
	doc := NewDoc()
	if doc.Title() != nil {
		t.Error("Title() on empty doc should be nil")
	}

	doc.Set(TitleField, "Notes")
	title := doc.Title()
	if title == nil || *title != "Notes" {
		t.Errorf("Title() = %v, want Notes", title)
	}
}

func TestApplyUpdateCommutative(t *testing.T) {
	source := NewDoc()
	source.Set("a", "1")
	updateA := source.EncodeState()
	source.Set("b", "2")
	updateB := source.EncodeState()

	forward := NewDoc()
	if err := forward.ApplyUpdate(updateA); err != nil {
		t.Fatalf("ApplyUpdate(a) failed: %v", err)
	}
	if err := forward.ApplyUpdate(updateB); err != nil {
		t.Fatalf("ApplyUpdate(b) failed: %v", err)
	}

	reverse := NewDoc()
	if err := reverse.ApplyUpdate(updateB); err != nil {
		t.Fatalf("ApplyUpdate(b) failed: %v", err)
	}
	if err := reverse.ApplyUpdate(updateA); err != nil {
		t.Fatalf("ApplyUpdate(a) failed: %v", err)
	}

	if !bytes.Equal(forward.EncodeState(), reverse.EncodeState()) {
		t.Error("applying updates in different orders diverged")
	}
}

func TestApplyUpdateIdempotent(t *testing.T) {
	source := NewDoc()
	source.Set("a", "1")
	update := source.EncodeState()

	doc := NewDoc()
	for i := 0; i < 3; i++ {
		if err := doc.ApplyUpdate(update); err != nil {
			t.Fatalf("ApplyUpdate() failed on round %d: %v", i, err)
		}
	}

	if !bytes.Equal(doc.EncodeState(), update) {
		t.Error("re-applying the same update changed state")
	}
}

func TestEncodeStateRoundTrip(t *testing.T) {
	source := NewDoc()
	source.Set(TitleField, "Notes")
	source.Set("body", "some content")
	snapshot := source.EncodeState()

	hydrated := NewDoc()
	if err := hydrated.ApplyUpdate(snapshot); err != nil {
		t.Fatalf("ApplyUpdate(snapshot) failed: %v", err)
	}

	if !bytes.Equal(hydrated.EncodeState(), snapshot) {
		t.Error("hydrate-then-encode did not reproduce the snapshot bytes")
	}
}

func TestApplyUpdateCorrupt(t *testing.T) {
	doc := NewDoc()
	if err := doc.ApplyUpdate([]byte("not an update")); err == nil {
		t.Error("ApplyUpdate() accepted a corrupt payload")
	}
}

func TestLastWriterWins(t *testing.T) {
	a := NewDoc()
	b := NewDoc()

	a.Set("body", "from a")
	if err := b.ApplyUpdate(a.EncodeState()); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	b.Set("body", "from b")
	if err := a.ApplyUpdate(b.EncodeState()); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}

	value, _ := a.Get("body")
	if value != "from b" {
		t.Errorf("later write did not win, got %q", value)
	}
	if !bytes.Equal(a.EncodeState(), b.EncodeState()) {
		t.Error("replicas diverged after exchanging updates")
	}
}

func TestObserversFireOnChangeOnly(t *testing.T) {
	source := NewDoc()
	source.Set("a", "1")
	update := source.EncodeState()

	doc := NewDoc()
	fired := 0
	doc.OnUpdate(func([]byte) { fired++ })

	if err := doc.ApplyUpdate(update); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("observer fired %d times after first apply, want 1", fired)
	}

	if err := doc.ApplyUpdate(update); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("observer fired on a no-op apply, total %d", fired)
	}

	doc.Set("b", "2")
	if fired != 2 {
		t.Errorf("observer did not fire on local Set, total %d", fired)
	}
}
