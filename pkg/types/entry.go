package types

import "time"

// Entry is a reading as persisted by the entries service
type Entry struct {
	ID           int64     `json:"id" db:"id"`
	Value        float64   `json:"value" db:"value"`
	Timestamp    time.Time `json:"timestamp" db:"taken_at"`
	Description  string    `json:"description" db:"description"`
	PunctureSpot string    `json:"punctureSpot,omitempty" db:"puncture_spot"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
