package service

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"errors"
	"log"
)

// --- Error Definitions ---
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrWorkoutNotFound  = errors.New("workout not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrGymPlanNotFound  = errors.New("gym plan not found")
	ErrNoImage          = errors.New("workout has no image")
	ErrImageTooLarge    = errors.New("image exceeds size limit")
)

// MaxImageBytes bounds images accepted for upload.
const MaxImageBytes = 10 << 20

// Kicker schedules a sync pass for a family. Implemented by syncer.Coordinator.
type Kicker interface {
	Kick(family domain.Family) error
}

// notifier is shared by the services: announce a committed local change and
// ask the family's engine to push it.
type notifier struct {
	kicker Kicker
	events events.Publisher
}

func (n notifier) changed(family domain.Family, localID string) {
	n.events.Publish(events.Event{Family: family, Kind: events.KindLocalMutation, LocalID: localID})
	if n.kicker == nil {
		return
	}
	if err := n.kicker.Kick(family); err != nil {
		log.Printf("WARN: kick %s after local change: %v", family, err)
	}
}
