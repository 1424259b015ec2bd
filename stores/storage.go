package stores

import (
	"os"

	"collab-space/core"
	"collab-space/stores/aws"
	"collab-space/stores/filesystem"
	"collab-space/stores/memory"
	"collab-space/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore selects a snapshot store backend from the STORAGE_TYPE environment
// variable. The in-memory store is the default so the server runs with zero
// configuration; memory-backed documents do not survive a restart.
func GetStore() core.SnapshotStore {
	storageType := os.Getenv("STORAGE_TYPE")
	var store core.SnapshotStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data" // Default path
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "collab.db" // Default filename
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		prefix := os.Getenv("S3_PREFIX")
		if prefix == "" {
			prefix = "collab-docs/"
		}
		storageField["bucketName"] = bucketName
		storageField["prefix"] = prefix
		store = aws.NewStore(bucketName, prefix, os.Getenv("S3_ENDPOINT"))
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
