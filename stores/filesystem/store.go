package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
}

// NewStore creates a filesystem-backed snapshot store rooted at basePath.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) roomDir(roomID string) string {
	return filepath.Join(s.basePath, "rooms", roomID)
}

func (s *fsStore) treePath(roomID string) string {
	return filepath.Join(s.roomDir(roomID), "tree.json")
}

func (s *fsStore) WriteSnapshot(ctx context.Context, roomID string, tree *core.FileNode) (string, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot for room %s: %v", roomID, err)
	}

	if err := os.MkdirAll(s.roomDir(roomID), 0755); err != nil {
		return "", fmt.Errorf("failed to create room directory: %v", err)
	}
	if err := os.WriteFile(s.treePath(roomID), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot file: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"room":  roomID,
		"path":  s.treePath(roomID),
		"bytes": len(data),
	}).Info("snapshot written")
	return fmt.Sprintf("rooms/%s/", roomID), nil
}

func (s *fsStore) ReadSnapshot(ctx context.Context, roomID string) (*core.FileNode, error) {
	data, err := os.ReadFile(s.treePath(roomID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot for room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read snapshot file: %v", err)
	}

	var tree core.FileNode
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}
	return &tree, nil
}

func (s *fsStore) DeleteSnapshot(ctx context.Context, roomID string) error {
	if err := os.RemoveAll(s.roomDir(roomID)); err != nil {
		return fmt.Errorf("failed to delete snapshot directory: %v", err)
	}
	return nil
}
