package domain

import (
	"time"
)

// Workout is a recorded training session. Kind selects the concrete Stats variant.
type Workout struct {
	SyncMeta `bson:",inline"`

	Kind         WorkoutKind   `bson:"kind" json:"kind"`
	Name         string        `bson:"name" json:"name"`
	StartedAt    time.Time     `bson:"startedAt" json:"startedAt"`
	Duration     time.Duration `bson:"duration" json:"duration"`
	Notes        string        `bson:"notes,omitempty" json:"notes,omitempty"`
	CaloriesKcal int           `bson:"caloriesKcal,omitempty" json:"caloriesKcal,omitempty"`

	// StatsRaw holds the encoded variant so it survives a round trip
	// through any store; use WorkoutStats/SetStats to work with it.
	StatsRaw []byte `bson:"stats,omitempty" json:"-"`

	ImageURL         string `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"` // set once the image upload is acknowledged
	Image            []byte `bson:"image,omitempty" json:"-"`
	ImageContentType string `bson:"imageContentType,omitempty" json:"imageContentType,omitempty"`
	ImageDigest      string `bson:"imageDigest,omitempty" json:"imageDigest,omitempty"`
}

// NewWorkout creates a dirty, never-synced workout of the given variant.
func NewWorkout(name string, startedAt time.Time, duration time.Duration, stats WorkoutStats) (*Workout, error) {
	w := &Workout{
		SyncMeta:  NewSyncMeta(),
		Name:      name,
		StartedAt: startedAt.UTC(),
		Duration:  duration,
	}
	if err := w.SetStats(stats); err != nil {
		return nil, err
	}
	return w, nil
}

// WorkoutStats decodes the stored variant.
func (w *Workout) WorkoutStats() (WorkoutStats, error) {
	return DecodeStats(w.Kind, w.StatsRaw)
}

// SetStats replaces the variant and its discriminator together.
func (w *Workout) SetStats(stats WorkoutStats) error {
	raw, err := EncodeStats(stats)
	if err != nil {
		return err
	}
	w.Kind = stats.Kind()
	w.StatsRaw = raw
	return nil
}

// AttachImage stores a new image locally and marks it for upload.
func (w *Workout) AttachImage(data []byte, contentType string) {
	w.Image = data
	w.ImageContentType = contentType
	w.ImageDigest = AssetDigest(data)
	w.ImageURL = ""
	w.AssetPending = len(data) > 0
}

// HasPendingImage reports an image that exists locally but has no remote URL yet.
func (w *Workout) HasPendingImage() bool {
	return len(w.Image) > 0 && w.ImageURL == ""
}
