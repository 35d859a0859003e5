package models

import "time"

const GlobalStateID = 1

// GlobalState is a single row table remembering where the long poller stopped.
type GlobalState struct {
	ID           int `gorm:"primaryKey;autoIncrement:false"`
	LastUpdateID int
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
