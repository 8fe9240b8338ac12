package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// WorkoutKind is the discriminator of the workout stats variant.
type WorkoutKind string

const (
	KindRun      WorkoutKind = "run"
	KindCycle    WorkoutKind = "cycle"
	KindSwim     WorkoutKind = "swim"
	KindStrength WorkoutKind = "strength"
)

// ErrUnknownKind is returned for a discriminator outside the supported variant set.
var ErrUnknownKind = errors.New("unknown workout kind")

// WorkoutStats is the closed set of sport-specific payloads. Only types in this
// package implement it.
type WorkoutStats interface {
	Kind() WorkoutKind
	isWorkoutStats()
}

// RunStats covers outdoor and treadmill runs.
type RunStats struct {
	DistanceMeters float64 `json:"distanceMeters"`
	AvgHeartRate   int     `json:"avgHeartRate,omitempty"`
	ElevationGainM float64 `json:"elevationGainM,omitempty"`
	Steps          int     `json:"steps,omitempty"`
}

// CycleStats covers road and indoor rides.
type CycleStats struct {
	DistanceMeters float64 `json:"distanceMeters"`
	AvgHeartRate   int     `json:"avgHeartRate,omitempty"`
	ElevationGainM float64 `json:"elevationGainM,omitempty"`
	AvgCadence     int     `json:"avgCadence,omitempty"`
}

// SwimStats covers pool swims.
type SwimStats struct {
	Laps         int     `json:"laps"`
	PoolLengthM  float64 `json:"poolLengthM"`
	Stroke       string  `json:"stroke,omitempty"`
	AvgHeartRate int     `json:"avgHeartRate,omitempty"`
}

// StrengthStats covers gym sessions.
type StrengthStats struct {
	Sets          int     `json:"sets"`
	Reps          int     `json:"reps"`
	TotalVolumeKg float64 `json:"totalVolumeKg,omitempty"`
	GymPlanID     string  `json:"gymPlanId,omitempty"` // local id of the plan followed, if any
}

func (RunStats) Kind() WorkoutKind      { return KindRun }
func (CycleStats) Kind() WorkoutKind    { return KindCycle }
func (SwimStats) Kind() WorkoutKind     { return KindSwim }
func (StrengthStats) Kind() WorkoutKind { return KindStrength }

func (RunStats) isWorkoutStats()      {}
func (CycleStats) isWorkoutStats()    {}
func (SwimStats) isWorkoutStats()     {}
func (StrengthStats) isWorkoutStats() {}

// EncodeStats serialises a variant. The kind travels separately.
func EncodeStats(stats WorkoutStats) ([]byte, error) {
	if stats == nil {
		return nil, fmt.Errorf("%w: nil stats", ErrUnknownKind)
	}
	return json.Marshal(stats)
}

// DecodeStats resolves raw bytes into the variant selected by kind.
func DecodeStats(kind WorkoutKind, raw []byte) (WorkoutStats, error) {
	var (
		stats WorkoutStats
		err   error
	)
	switch kind {
	case KindRun:
		var s RunStats
		err = decodeOptional(raw, &s)
		stats = s
	case KindCycle:
		var s CycleStats
		err = decodeOptional(raw, &s)
		stats = s
	case KindSwim:
		var s SwimStats
		err = decodeOptional(raw, &s)
		stats = s
	case KindStrength:
		var s StrengthStats
		err = decodeOptional(raw, &s)
		stats = s
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s stats: %w", kind, err)
	}
	return stats, nil
}

func decodeOptional(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
