package models

import "time"

// CoordinatorLease records which daemon currently drives the fleet. There
// is at most one row per fleet name.
type CoordinatorLease struct {
	Name          string `gorm:"primaryKey;size:64"`
	Holder        string `gorm:"size:128"`
	AcquiredAt    time.Time
	LastHeartbeat time.Time `gorm:"index"`
}
