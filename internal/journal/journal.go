// Package journal appends structured audit entries to JSON Lines files.
//
// Writing is best effort: a failed append is reported once through the
// standard logger and otherwise ignored, so callers never branch on it.
package journal

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zulandar/hive/internal/models"
	"gorm.io/gorm"
)

// Mirror receives a copy of every entry a Journal writes.
type Mirror interface {
	Record(stream, event string, payload []byte) error
}

// Journal is an append-only JSONL file. It is safe for concurrent use.
type Journal struct {
	path   string
	stream string
	mirror Mirror

	mu sync.Mutex
}

// Option configures a Journal.
type Option func(*Journal)

// WithMirror copies each appended entry to m.
func WithMirror(m Mirror) Option {
	return func(j *Journal) { j.mirror = m }
}

// WithStream names the journal for mirrors. Defaults to the file's base name.
func WithStream(name string) Option {
	return func(j *Journal) { j.stream = name }
}

// New returns a Journal writing to path. The parent directory is created on
// first append.
func New(path string, opts ...Option) *Journal {
	j := &Journal{path: path, stream: filepath.Base(path)}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Append writes entry as one JSON line. event is only used for the mirror;
// entries are expected to carry their own event field. A nil Journal discards.
func (j *Journal) Append(event string, entry any) {
	if j == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("journal: %s: marshal %s: %v", j.stream, event, err)
		return
	}

	j.mu.Lock()
	err = j.write(data)
	j.mu.Unlock()
	if err != nil {
		log.Printf("journal: %s: failed to log event %s: %v", j.stream, event, err)
	}

	if j.mirror != nil {
		if err := j.mirror.Record(j.stream, event, data); err != nil {
			log.Printf("journal: %s: mirror %s: %v", j.stream, event, err)
		}
	}
}

func (j *Journal) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DBMirror records journal entries as models.JournalEntry rows.
type DBMirror struct {
	DB *gorm.DB
}

// Record implements Mirror.
func (m DBMirror) Record(stream, event string, payload []byte) error {
	if m.DB == nil {
		return fmt.Errorf("journal: db is required")
	}
	row := models.JournalEntry{
		Stream:    stream,
		Event:     event,
		Payload:   string(payload),
		CreatedAt: time.Now(),
	}
	if err := m.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("journal: record %s/%s: %w", stream, event, err)
	}
	return nil
}

// Timestamp formats t the way every journal entry stamps itself.
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
