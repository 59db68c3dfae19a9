package models

import "time"

// Agent is a fleet member's last reported state, written by heartbeats.
type Agent struct {
	ID              string    `gorm:"primaryKey;size:64"`
	Role            string    `gorm:"size:16"`
	Status          string    `gorm:"size:16;index"`
	CurrentTask     string    `gorm:"size:256"`
	RegisteredAt    time.Time
	LastHeartbeat   time.Time `gorm:"index"`
	StatusChangedAt time.Time
}
