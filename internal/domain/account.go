package domain

import (
	"time"
)

// Gender is stored as free-form lowercase text ("female", "male", "other").
type Gender string

// Profile holds the body and goal attributes edited on the profile screen.
type Profile struct {
	HeightCm          float64    `bson:"heightCm,omitempty" json:"heightCm,omitempty"`
	WeightKg          float64    `bson:"weightKg,omitempty" json:"weightKg,omitempty"`
	BirthDate         *time.Time `bson:"birthDate,omitempty" json:"birthDate,omitempty"`
	Gender            Gender     `bson:"gender,omitempty" json:"gender,omitempty"`
	WeeklyGoalMinutes int        `bson:"weeklyGoalMinutes,omitempty" json:"weeklyGoalMinutes,omitempty"`
}

// Account is the signed-in user together with their profile. It syncs as one record.
type Account struct {
	SyncMeta `bson:",inline"`

	Subject     string  `bson:"subject" json:"subject"` // JWT subject of the owning user
	Email       string  `bson:"email" json:"email"`
	DisplayName string  `bson:"displayName" json:"displayName"`
	Profile     Profile `bson:"profile" json:"profile"`
}

// NewAccount creates a dirty, never-synced account for the given user.
func NewAccount(subject, email, displayName string) *Account {
	return &Account{
		SyncMeta:    NewSyncMeta(),
		Subject:     subject,
		Email:       email,
		DisplayName: displayName,
	}
}
