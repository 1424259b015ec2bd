// Package directory answers "list all documents" and "delete a document" by
// reconciling the live session registry with the snapshot store.
package directory

import (
	"context"
	"fmt"
	"sort"

	"collab-space/core"
	"collab-space/crdt"
	"collab-space/session"

	"github.com/sirupsen/logrus"
)

// Service reads the registry and the store in parallel sources of truth for
// listing, and writes to both for deletion.
type Service struct {
	registry *session.Registry
	store    core.SnapshotStore
}

// NewService creates a directory service over the given registry and store.
func NewService(registry *session.Registry, store core.SnapshotStore) *Service {
	return &Service{registry: registry, store: store}
}

// List returns metadata for every stored document, most recently modified
// first. Titles come from the live document when one exists, since it carries
// unsaved edits; otherwise from a throwaway decode of the stored snapshot.
// Last-modified always comes from store metadata, so a document with unsaved
// live edits shows its last persisted write time.
func (s *Service) List(ctx context.Context) ([]core.DocumentMeta, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	docs := make([]core.DocumentMeta, 0, len(infos))
	for _, info := range infos {
		modified := info.LastModified
		docs = append(docs, core.DocumentMeta{
			ID:           info.ID,
			Title:        s.title(ctx, info.ID),
			LastModified: &modified,
		})
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].LastModified.After(*docs[j].LastModified)
	})
	return docs, nil
}

// title extracts a document's title, preferring the live session. A missing
// or corrupt snapshot yields a nil title, never a failed listing.
func (s *Service) title(ctx context.Context, id string) *string {
	if live := s.registry.Get(id); live != nil {
		return live.Doc.Title()
	}

	data, err := s.store.Get(ctx, id)
	if err != nil {
		logrus.WithField("document_id", id).WithError(err).Warn("Failed to read snapshot for title")
		return nil
	}

	doc := crdt.NewDoc()
	if err := doc.ApplyUpdate(data); err != nil {
		logrus.WithField("document_id", id).WithError(err).Warn("Failed to decode snapshot for title")
		return nil
	}
	return doc.Title()
}

// Delete removes a document from memory and from the store. The eviction
// cancels any pending write-back first, so deleted content cannot be written
// back afterwards. Deleting a document that exists in neither location is a
// successful no-op, and a later connection with the same id starts a brand-new
// empty document.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.registry.Evict(id)

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}

	logrus.WithField("document_id", id).Info("Document deleted")
	return nil
}
