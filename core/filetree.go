package core

import (
	"math"
	"strings"
)

const (
	NodeTypeFile   = "file"
	NodeTypeFolder = "folder"
)

// FileNode is one node of a room's file tree. A file carries content, a
// folder carries children. The tree is the unit of persistence: snapshots
// always replace the whole tree.
type FileNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Content  string      `json:"content,omitempty"`
	Children []*FileNode `json:"children,omitempty"`
}

// Summary walks the tree and produces the metadata recorded on the durable
// Room record at shutdown: file count, total size in KB (two decimals) and
// the distinct file extensions present.
func (n *FileNode) Summary() RoomMetadata {
	meta := RoomMetadata{FileTypes: []string{}}
	if n == nil {
		return meta
	}

	var totalBytes int
	seen := make(map[string]bool)
	var walk func(node *FileNode)
	walk = func(node *FileNode) {
		if node == nil {
			return
		}
		if node.Type == NodeTypeFile {
			meta.FileCount++
			totalBytes += len(node.Content)
			if i := strings.LastIndex(node.Name, "."); i >= 0 && i < len(node.Name)-1 {
				ext := strings.ToLower(node.Name[i+1:])
				if !seen[ext] {
					seen[ext] = true
					meta.FileTypes = append(meta.FileTypes, ext)
				}
			}
			return
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(n)

	meta.TotalSizeKB = math.Round(float64(totalBytes)/1024*100) / 100
	return meta
}
