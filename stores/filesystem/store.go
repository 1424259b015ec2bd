package filesystem

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"collab-space/core"

	"github.com/sirupsen/logrus"
)

// fsStore implements core.SnapshotStore with one file per document under a
// base directory. The file modification time doubles as the snapshot's
// last-modified metadata.
type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

// snapshotPath validates the id and maps it to a file path. Ids must be plain
// names, never paths, to prevent traversal out of the base directory.
func (s *fsStore) snapshotPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid document id %q", id)
	}
	return filepath.Join(s.basePath, id), nil
}

func (s *fsStore) Get(ctx context.Context, id string) ([]byte, error) {
	filePath, err := s.snapshotPath(id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"document_id": id, "file_path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrSnapshotNotFound
		}
		log.WithError(err).Error("Failed to read snapshot file")
		return nil, err
	}
	return data, nil
}

func (s *fsStore) Put(ctx context.Context, id string, data []byte) error {
	filePath, err := s.snapshotPath(id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"document_id": id, "file_path": filePath})

	// Write to a temp file and rename so readers never see a partial blob.
	tmp, err := os.CreateTemp(s.basePath, ".snapshot-*")
	if err != nil {
		log.WithError(err).Error("Failed to create temp snapshot file")
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		log.WithError(err).Error("Failed to write snapshot file")
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		log.WithError(err).Error("Failed to move snapshot file into place")
		return err
	}

	log.WithField("data_length", len(data)).Debug("Snapshot written")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, id string) error {
	filePath, err := s.snapshotPath(id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"document_id": id, "file_path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			// If it doesn't exist, the goal is achieved.
			return nil
		}
		log.WithError(err).Error("Failed to delete snapshot file")
		return err
	}
	return nil
}

func (s *fsStore) List(ctx context.Context) ([]core.SnapshotInfo, error) {
	files, err := os.ReadDir(s.basePath)
	if err != nil {
		logrus.WithField("path", s.basePath).WithError(err).Error("Failed to read storage directory")
		return nil, err
	}

	infos := make([]core.SnapshotInfo, 0, len(files))
	for _, file := range files {
		if file.IsDir() || file.Name()[0] == '.' {
			continue
		}
		fileInfo, err := file.Info()
		if err != nil {
			logrus.WithError(err).Warnf("Failed to stat %s, skipping", file.Name())
			continue
		}
		infos = append(infos, core.SnapshotInfo{ID: file.Name(), LastModified: fileInfo.ModTime()})
	}
	return infos, nil
}
