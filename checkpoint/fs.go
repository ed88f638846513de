package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultDir is the default filesystem checkpoint directory.
const DefaultDir = ".surreal-sync-checkpoints"

// fileDoc is the on-disk JSON document of one checkpoint file.
type fileDoc struct {
	Phase        string          `json:"phase"`
	DatabaseType string          `json:"database_type"`
	Checkpoint   json.RawMessage `json:"checkpoint"`
	CreatedAt    time.Time       `json:"created_at"`
}

// FilesystemStore persists one JSON document per (phase, timestamp) under a
// directory, with filenames checkpoint_{phase}_{timestamp}.json. Reads return
// the newest file for the requested id.
type FilesystemStore struct {
	Dir string
}

func NewFilesystemStore(dir string) *FilesystemStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FilesystemStore{Dir: dir}
}

func (s *FilesystemStore) Store(ctx context.Context, id ID, data string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory %s: %w", s.Dir, err)
	}
	doc := fileDoc{
		Phase:        id.Phase,
		DatabaseType: id.DatabaseType,
		Checkpoint:   json.RawMessage(data),
		CreatedAt:    time.Now().UTC(),
	}
	body, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return err
	}

	name := fmt.Sprintf("checkpoint_%s_%d.json", id.Phase, doc.CreatedAt.UnixNano())
	path := filepath.Join(s.Dir, name)

	// Write through a temp file and rename, so a torn write never surfaces
	// as a readable checkpoint.
	tmp, err := os.CreateTemp(s.Dir, name+".tmp")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	log.WithFields(log.Fields{
		"phase": id.Phase,
		"path":  path,
	}).Debug("wrote checkpoint file")
	return nil
}

func (s *FilesystemStore) Read(ctx context.Context, id ID) (*Stored, error) {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading checkpoint directory %s: %w", s.Dir, err)
	}

	prefix := "checkpoint_" + id.Phase + "_"
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, prefix) && strings.HasSuffix(n, ".json") {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	// Timestamps in the filename sort newest-last.
	sort.Strings(names)

	for i := len(names) - 1; i >= 0; i-- {
		body, err := os.ReadFile(filepath.Join(s.Dir, names[i]))
		if err != nil {
			return nil, err
		}
		var doc fileDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("malformed checkpoint file %s: %w", names[i], err)
		}
		if doc.DatabaseType != "" && doc.DatabaseType != id.DatabaseType {
			continue
		}
		return &Stored{
			Data:         string(doc.Checkpoint),
			DatabaseType: doc.DatabaseType,
			Phase:        doc.Phase,
			CreatedAt:    doc.CreatedAt,
		}, nil
	}
	return nil, nil
}
