package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates an S3-backed snapshot store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func roomPrefix(roomID string) string {
	return fmt.Sprintf("rooms/%s/", roomID)
}

func treeKey(roomID string) string {
	return roomPrefix(roomID) + "tree.json"
}

// WriteSnapshot replaces any prior snapshot for the room; nothing is
// versioned. The returned storage key is the room's object prefix.
func (s *s3Store) WriteSnapshot(ctx context.Context, roomID string, tree *core.FileNode) (string, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot for room %s: %v", roomID, err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(treeKey(roomID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot for room %s: %v", roomID, err)
	}

	logrus.WithFields(logrus.Fields{
		"room":  roomID,
		"bytes": len(data),
	}).Info("snapshot uploaded")
	return roomPrefix(roomID), nil
}

func (s *s3Store) ReadSnapshot(ctx context.Context, roomID string) (*core.FileNode, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(treeKey(roomID)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("snapshot for room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot for room %s: %v", roomID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %v", err)
	}

	var tree core.FileNode
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}
	return &tree, nil
}

// DeleteSnapshot removes every object under the room's prefix.
func (s *s3Store) DeleteSnapshot(ctx context.Context, roomID string) error {
	prefix := roomPrefix(roomID)
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to list snapshot objects for room %s: %v", roomID, err)
	}

	for _, object := range output.Contents {
		_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    object.Key,
		})
		if err != nil {
			return fmt.Errorf("failed to delete object %s: %v", *object.Key, err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"room":    roomID,
		"objects": len(output.Contents),
	}).Info("snapshot deleted")
	return nil
}
