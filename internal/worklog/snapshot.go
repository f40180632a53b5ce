package worklog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dbsunset/dbsunset/pkg/persist"
)

// Store persists log snapshots as JSON arrays under a directory, one file
// per workflow id. With compression enabled snapshots are LZ4-framed.
type Store struct {
	dir   string
	codec persist.Codec
}

// NewStore creates a snapshot store rooted at dir.
func NewStore(dir string, compress bool) *Store {
	var codec persist.Codec = persist.NewJSONCodec()
	if compress {
		codec = persist.NewLZ4JSONCodec()
	}

	return &Store{dir: dir, codec: codec}
}

// Save writes the full snapshot of a log. The directory is created on demand.
func (s *Store) Save(log *Log) (string, error) {
	err := os.MkdirAll(s.dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	entries := log.Entries("")

	err = persist.SaveState(s.dir, log.WorkflowID(), s.codec, entries)
	if err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", log.WorkflowID(), err)
	}

	return filepath.Join(s.dir, log.WorkflowID()+s.codec.Extension()), nil
}

// Load reads a snapshot back as entries in append order.
func (s *Store) Load(workflowID string) ([]Entry, error) {
	var entries []Entry

	err := persist.LoadState(s.dir, workflowID, s.codec, &entries)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", workflowID, err)
	}

	return entries, nil
}

// List returns the workflow ids with a snapshot on disk, sorted.
func (s *Store) List() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	extension := s.codec.Extension()

	var ids []string

	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || !strings.HasSuffix(name, extension) {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, extension))
	}

	sort.Strings(ids)

	return ids, nil
}

// LoadSnapshotFile reads a snapshot from an arbitrary path, picking the codec
// from the file extension.
func LoadSnapshotFile(path string) ([]Entry, error) {
	codec, err := persist.DetectCodec(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	var entries []Entry

	err = codec.Decode(file, &entries)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}

	return entries, nil
}

// WriteNDJSON streams the log's entries to w, one JSON object per line.
func WriteNDJSON(w io.Writer, entries []Entry) error {
	encoder := json.NewEncoder(w)

	for _, entry := range entries {
		err := encoder.Encode(entry)
		if err != nil {
			return fmt.Errorf("encode entry %d: %w", entry.ID, err)
		}
	}

	return nil
}
