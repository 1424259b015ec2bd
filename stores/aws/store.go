package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"collab-space/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// s3Store implements core.SnapshotStore on an S3 bucket. Each document
// occupies exactly one object whose key is the configured prefix concatenated
// with the document id; a single PutObject replaces the whole snapshot.
type s3Store struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
}

// NewStore creates a new S3-based store. Region and credentials come from the
// SDK's default chain; endpoint may be set to target an S3-compatible store.
func NewStore(bucketName, prefix, endpoint string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Store{
		s3Client: s3Client,
		bucket:   bucketName,
		prefix:   prefix,
	}
}

func (s *s3Store) key(id string) string {
	return s.prefix + id
}

func (s *s3Store) Get(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %w", err)
	}
	return data, nil
}

func (s *s3Store) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", id, err)
	}

	logrus.WithFields(logrus.Fields{
		"document_id": id,
		"data_length": len(data),
	}).Debug("Snapshot uploaded")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	// DeleteObject succeeds for keys that do not exist.
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	return nil
}

func (s *s3Store) List(ctx context.Context) ([]core.SnapshotInfo, error) {
	var infos []core.SnapshotInfo

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, object := range page.Contents {
			id := strings.TrimPrefix(*object.Key, s.prefix)
			if id == "" {
				continue
			}
			info := core.SnapshotInfo{ID: id}
			if object.LastModified != nil {
				info.LastModified = *object.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}
