package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zulandar/hive/internal/models"
	"gorm.io/gorm"
)

// ReadAll decodes every line of the JSONL file at path into maps. A missing
// file yields no entries.
func ReadAll(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			return out, fmt.Errorf("journal: decode %s: %w", path, err)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("journal: read %s: %w", path, err)
	}
	return out, nil
}

// Recent returns the newest mirrored entries for a stream, newest first.
func Recent(db *gorm.DB, stream string, limit int) ([]models.JournalEntry, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: db is required")
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []models.JournalEntry
	if err := db.Where("stream = ?", stream).
		Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal: recent %s: %w", stream, err)
	}
	return rows, nil
}
