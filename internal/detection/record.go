package detection

import (
	"time"

	"github.com/example/plant-scan/internal/matcher"
)

// Location is a best-effort capture position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Record is the outcome of one detection as rendered to users and stored in
// history.
type Record struct {
	ID         string    `json:"id,omitempty"`
	IsPlant    bool      `json:"isPlant"`
	PlantName  string    `json:"plantName,omitempty"`
	Confidence float64   `json:"confidence"`
	Location   *Location `json:"location,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	EntryID    string    `json:"entryId,omitempty"`
	IsFallback bool      `json:"isFallback,omitempty"`
}

// NewRecord maps a match into a record. PlantName is only set for plants.
func NewRecord(res matcher.Result, loc *Location, capturedAt time.Time) *Record {
	rec := &Record{
		IsPlant:    res.Entry.IsPlant(),
		Confidence: res.Score,
		Location:   loc,
		Timestamp:  capturedAt.UTC(),
		EntryID:    res.Entry.ID,
		IsFallback: res.IsFallback,
	}
	if rec.IsPlant {
		rec.PlantName = res.Entry.Name
	}
	return rec
}
