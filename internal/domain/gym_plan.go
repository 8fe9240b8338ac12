package domain

// GymExercise is one exercise slot inside a plan day. It has no sync identity of
// its own and travels inside the parent plan's payload.
type GymExercise struct {
	Name        string  `bson:"name" json:"name"`
	Sets        int     `bson:"sets" json:"sets"`
	Reps        int     `bson:"reps" json:"reps"`
	WeightKg    float64 `bson:"weightKg,omitempty" json:"weightKg,omitempty"`
	RestSeconds int     `bson:"restSeconds,omitempty" json:"restSeconds,omitempty"`
}

// GymDay is an ordered list of exercises performed on one plan day.
type GymDay struct {
	Title     string        `bson:"title" json:"title"`
	DayOfWeek *int          `bson:"dayOfWeek,omitempty" json:"dayOfWeek,omitempty"` // 1 (Mon) - 7 (Sun)
	Exercises []GymExercise `bson:"exercises" json:"exercises"`
}

// GymPlan is a user's training plan. Days and exercises keep their order.
type GymPlan struct {
	SyncMeta `bson:",inline"`

	Name        string   `bson:"name" json:"name"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	IsActive    bool     `bson:"isActive" json:"isActive"`
	Days        []GymDay `bson:"days" json:"days"`
}

// NewGymPlan creates a dirty, never-synced plan.
func NewGymPlan(name, description string, days []GymDay) *GymPlan {
	return &GymPlan{
		SyncMeta:    NewSyncMeta(),
		Name:        name,
		Description: description,
		Days:        days,
	}
}
