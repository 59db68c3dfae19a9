package models

import "time"

// JournalEntry mirrors one line of an append-only JSONL journal.
type JournalEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Stream    string    `gorm:"size:64;index:idx_stream_event"`
	Event     string    `gorm:"size:64;index:idx_stream_event"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}
