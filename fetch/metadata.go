package fetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Metadata describes a completed fetch.
type Metadata struct {
	Blob        string `json:"blob"`
	Destination string `json:"destination"`
	SizeBytes   uint64 `json:"size_bytes"`
	Took        string `json:"took"`
}

var metadataFileMutex sync.Mutex

// writeMetadata appends the given entry to the JSON array kept in filename.
func writeMetadata(m Metadata, filename string) error {
	metadataFileMutex.Lock()
	defer metadataFileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("create directory for <%s>, %w", filename, err)
	}

	var entries []Metadata

	content, err := os.ReadFile(filename)

	switch {
	case err == nil && len(content) > 0:
		if err := json.Unmarshal(content, &entries); err != nil {
			return fmt.Errorf("unmarshal existing metadata <%s>, %w", filename, err)
		}
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("read metadata <%s>, %w", filename, err)
	}

	entries = append(entries, m)

	out, err := json.MarshalIndent(entries, "", "\t")
	if err != nil {
		return fmt.Errorf("marshal metadata, %w", err)
	}

	if err := os.WriteFile(filename, out, 0644); err != nil {
		return fmt.Errorf("write metadata <%s>, %w", filename, err)
	}

	return nil
}
