package syncer

import (
	"alcyxob/fitness-sync/internal/domain"
	"encoding/json"
	"fmt"
	"time"
)

// Adapter supplies the per-family pieces the generic engine cannot know:
// how to build, serialize and overwrite one concrete entity type.
type Adapter[E domain.Entity] interface {
	Family() domain.Family
	// New returns an empty entity used when a pulled record has no local match.
	New() E
	// Kind is the discriminator sent with the payload.
	Kind(E) string
	Serialize(E) (json.RawMessage, error)
	// MergeFields overwrites every server-authoritative payload field. Identity
	// and dirty state are handled by the reconciler.
	MergeFields(E, domain.RemoteRecord) error
}

// AssetAdapter is implemented by adapters of families that own a dependent asset.
type AssetAdapter[E domain.Entity] interface {
	// PendingAsset returns the local bytes still waiting for upload.
	PendingAsset(E) (data []byte, contentType string, ok bool)
	// AttachUploaded records the URL for the asset whose digest was uploaded.
	// It returns false if the entity now holds a different asset.
	AttachUploaded(e E, url, digest string) bool
	// AssetURL is the URL of the asset the entity currently references.
	AssetURL(E) string
	// AttachDownloaded stores an asset fetched for a pulled record.
	AttachDownloaded(e E, url string, data []byte)
}

// WorkoutAdapter syncs workouts and their images.
type WorkoutAdapter struct{}

type workoutPayload struct {
	Name            string          `json:"name"`
	StartedAt       time.Time       `json:"startedAt"`
	DurationSeconds float64         `json:"durationSeconds"`
	Notes           string          `json:"notes,omitempty"`
	CaloriesKcal    int             `json:"caloriesKcal,omitempty"`
	Stats           json.RawMessage `json:"stats,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
}

func (WorkoutAdapter) Family() domain.Family         { return domain.FamilyWorkout }
func (WorkoutAdapter) New() *domain.Workout          { return &domain.Workout{} }
func (WorkoutAdapter) Kind(w *domain.Workout) string { return string(w.Kind) }

func (WorkoutAdapter) Serialize(w *domain.Workout) (json.RawMessage, error) {
	// Refuse to send a variant the server would not understand either.
	if _, err := w.WorkoutStats(); err != nil {
		return nil, err
	}
	return json.Marshal(workoutPayload{
		Name:            w.Name,
		StartedAt:       w.StartedAt,
		DurationSeconds: w.Duration.Seconds(),
		Notes:           w.Notes,
		CaloriesKcal:    w.CaloriesKcal,
		Stats:           json.RawMessage(w.StatsRaw),
		ImageURL:        w.ImageURL,
	})
}

func (WorkoutAdapter) MergeFields(w *domain.Workout, rec domain.RemoteRecord) error {
	var p workoutPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return fmt.Errorf("decode workout payload: %w", err)
	}
	kind := domain.WorkoutKind(rec.Kind)
	stats, err := domain.DecodeStats(kind, p.Stats)
	if err != nil {
		return err
	}
	if err := w.SetStats(stats); err != nil {
		return err
	}
	w.Name = p.Name
	w.StartedAt = p.StartedAt.UTC()
	w.Duration = time.Duration(p.DurationSeconds * float64(time.Second))
	w.Notes = p.Notes
	w.CaloriesKcal = p.CaloriesKcal
	return nil
}

func (WorkoutAdapter) PendingAsset(w *domain.Workout) ([]byte, string, bool) {
	if !w.AssetPending || len(w.Image) == 0 {
		return nil, "", false
	}
	return w.Image, w.ImageContentType, true
}

func (WorkoutAdapter) AttachUploaded(w *domain.Workout, url, digest string) bool {
	if w.ImageDigest != digest {
		return false
	}
	w.ImageURL = url
	w.AssetPending = false
	return true
}

func (WorkoutAdapter) AssetURL(w *domain.Workout) string { return w.ImageURL }

func (WorkoutAdapter) AttachDownloaded(w *domain.Workout, url string, data []byte) {
	w.Image = data
	w.ImageDigest = domain.AssetDigest(data)
	w.ImageURL = url
	w.AssetPending = false
}

// AccountAdapter syncs the signed-in user's account and profile as one record.
type AccountAdapter struct{}

type accountPayload struct {
	Subject     string         `json:"subject"`
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName"`
	Profile     domain.Profile `json:"profile"`
}

const (
	accountKind = "account"
	gymPlanKind = "gym_plan"
)

func (AccountAdapter) Family() domain.Family       { return domain.FamilyAccount }
func (AccountAdapter) New() *domain.Account        { return &domain.Account{} }
func (AccountAdapter) Kind(*domain.Account) string { return accountKind }

func (AccountAdapter) Serialize(a *domain.Account) (json.RawMessage, error) {
	return json.Marshal(accountPayload{
		Subject:     a.Subject,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Profile:     a.Profile,
	})
}

func (AccountAdapter) MergeFields(a *domain.Account, rec domain.RemoteRecord) error {
	if err := expectKind(rec.Kind, accountKind); err != nil {
		return err
	}
	var p accountPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return fmt.Errorf("decode account payload: %w", err)
	}
	a.Subject = p.Subject
	a.Email = p.Email
	a.DisplayName = p.DisplayName
	a.Profile = p.Profile
	return nil
}

// GymPlanAdapter syncs plans together with their days and exercises.
type GymPlanAdapter struct{}

type gymPlanPayload struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"isActive"`
	Days        []domain.GymDay `json:"days"`
}

func (GymPlanAdapter) Family() domain.Family       { return domain.FamilyGymPlan }
func (GymPlanAdapter) New() *domain.GymPlan        { return &domain.GymPlan{} }
func (GymPlanAdapter) Kind(*domain.GymPlan) string { return gymPlanKind }

func (GymPlanAdapter) Serialize(p *domain.GymPlan) (json.RawMessage, error) {
	days := p.Days
	if days == nil {
		days = []domain.GymDay{}
	}
	return json.Marshal(gymPlanPayload{
		Name:        p.Name,
		Description: p.Description,
		IsActive:    p.IsActive,
		Days:        days,
	})
}

func (GymPlanAdapter) MergeFields(p *domain.GymPlan, rec domain.RemoteRecord) error {
	if err := expectKind(rec.Kind, gymPlanKind); err != nil {
		return err
	}
	var payload gymPlanPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return fmt.Errorf("decode gym plan payload: %w", err)
	}
	p.Name = payload.Name
	p.Description = payload.Description
	p.IsActive = payload.IsActive
	p.Days = payload.Days
	return nil
}

// expectKind accepts an empty discriminator for single-type families.
func expectKind(got, want string) error {
	if got == "" || got == want {
		return nil
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownKind, got)
}

var (
	_ Adapter[*domain.Workout]      = WorkoutAdapter{}
	_ AssetAdapter[*domain.Workout] = WorkoutAdapter{}
	_ Adapter[*domain.Account]      = AccountAdapter{}
	_ Adapter[*domain.GymPlan]      = GymPlanAdapter{}
)
