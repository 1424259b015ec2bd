package core

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned by SnapshotStore.Get when no snapshot has
// ever been written for a document. Callers treat it as "new empty document".
var ErrSnapshotNotFound = errors.New("snapshot not found")

type (
	// DocumentMeta is the directory projection of a document. It is derived on
	// demand from either the live session or the stored snapshot, never stored
	// as its own entity.
	DocumentMeta struct {
		ID           string     `json:"id"`
		Title        *string    `json:"title"`
		LastModified *time.Time `json:"lastModified"`
	}

	// SnapshotInfo describes one stored snapshot as reported by List.
	SnapshotInfo struct {
		ID           string
		LastModified time.Time
	}

	// SnapshotStore defines the persistence layer for document snapshots.
	// Each document occupies exactly one opaque blob keyed by its id; a Put
	// replaces the whole blob.
	SnapshotStore interface {
		// Get returns the snapshot blob for a document, or ErrSnapshotNotFound.
		Get(ctx context.Context, id string) ([]byte, error)

		// Put atomically replaces the snapshot blob for a document.
		Put(ctx context.Context, id string, data []byte) error

		// Delete removes a document's snapshot. Deleting a snapshot that does
		// not exist is not an error.
		Delete(ctx context.Context, id string) error

		// List enumerates all stored snapshots with their last-modified times.
		List(ctx context.Context) ([]SnapshotInfo, error)
	}
)
