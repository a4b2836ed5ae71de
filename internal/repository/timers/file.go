package timers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oshokin/dynamic-timers/internal/config"
	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
)

// Repository defines persistence operations for the live timer set.
type Repository interface {
	Load(ctx context.Context) ([]*domain.Timer, error)
	Save(ctx context.Context, timers []*domain.Timer) error
}

// FileRepository persists the live timer set as a single JSON document on
// disk. Saves replace the whole document atomically (write to a temporary
// file, then rename) so a crash mid-save cannot leave a half-written store.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// ErrNotFound is returned when the state file does not exist yet.
var ErrNotFound = errors.New("timer store not found")

// storeVersion is the document schema version.
const storeVersion = 1

// document is the on-disk layout of the store.
type document struct {
	// Version is the schema version of the document.
	Version int `json:"version"`
	// Timers holds one record per live timer, sorted by name.
	Timers []record `json:"timers"`
}

// record is the on-disk layout of one timer.
type record struct {
	Name            string          `json:"name"`
	State           string          `json:"state"`
	Expiry          *time.Time      `json:"expiry,omitempty"`
	PausedRemaining *float64        `json:"paused_remaining,omitempty"`
	Actions         []domain.Action `json:"actions"`
	Groups          []string        `json:"groups,omitempty"`
	RestartBehavior string          `json:"restart_behavior"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the live timer set from disk. Unreadable or malformed content
// is reported as a CorruptStoreError so the caller can fall back to an
// empty set without failing startup.
func (r *FileRepository) Load(_ context.Context) ([]*domain.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, &domain.CorruptStoreError{Err: fmt.Errorf("read state file: %w", err)}
	}

	var doc document
	if err = json.Unmarshal(contents, &doc); err != nil {
		return nil, &domain.CorruptStoreError{Err: fmt.Errorf("decode state file: %w", err)}
	}

	timers := make([]*domain.Timer, 0, len(doc.Timers))
	for i := range doc.Timers {
		timers = append(timers, fromRecord(&doc.Timers[i]))
	}

	return timers, nil
}

// Save writes the full live timer set to disk, replacing prior contents.
func (r *FileRepository) Save(_ context.Context, timers []*domain.Timer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := document{
		Version: storeVersion,
		Timers:  make([]record, 0, len(timers)),
	}

	for _, t := range timers {
		doc.Timers = append(doc.Timers, toRecord(t))
	}

	// Deterministic output so identical sets produce identical documents.
	sort.Slice(doc.Timers, func(i, j int) bool {
		return doc.Timers[i].Name < doc.Timers[j].Name
	})

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return r.replace(data)
}

// replace writes data to a temporary file in the target directory and
// renames it over the state file.
func (r *FileRepository) replace(data []byte) error {
	dir := filepath.Dir(r.path)

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary state file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("write temporary state file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("close temporary state file: %w", err)
	}

	if err = os.Chmod(tmpName, config.DefaultFilePermissions); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("chmod temporary state file: %w", err)
	}

	if err = os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// fromRecord converts an on-disk record into the domain Timer model.
func fromRecord(rec *record) *domain.Timer {
	t := &domain.Timer{
		Name:            rec.Name,
		State:           domain.State(rec.State),
		Actions:         rec.Actions,
		Groups:          rec.Groups,
		RestartBehavior: domain.RestartBehavior(rec.RestartBehavior),
		CreatedAt:       rec.CreatedAt,
	}

	if rec.Expiry != nil {
		t.Expiry = *rec.Expiry
	}

	if rec.PausedRemaining != nil {
		t.PausedRemaining = time.Duration(*rec.PausedRemaining * float64(time.Second))
	}

	return t
}

// toRecord converts the domain Timer model into an on-disk record.
func toRecord(t *domain.Timer) record {
	rec := record{
		Name:            t.Name,
		State:           string(t.State),
		Actions:         t.Actions,
		Groups:          t.Groups,
		RestartBehavior: string(t.RestartBehavior),
		CreatedAt:       t.CreatedAt,
	}

	switch t.State {
	case domain.StateActive:
		expiry := t.Expiry
		rec.Expiry = &expiry
	case domain.StatePaused:
		seconds := t.PausedRemaining.Seconds()
		rec.PausedRemaining = &seconds
	}

	return rec
}
