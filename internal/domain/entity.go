package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Family identifies an independently synchronized group of entities.
type Family string

const (
	FamilyWorkout Family = "workout"
	FamilyAccount Family = "account"
	FamilyGymPlan Family = "gym_plan"
)

// Families lists every family the engine knows about, in startup order.
var Families = []Family{FamilyWorkout, FamilyAccount, FamilyGymPlan}

// ErrUnknownFamily is returned when a family name cannot be resolved.
var ErrUnknownFamily = errors.New("unknown entity family")

// ParseFamily resolves a family from its name or its remote path segment.
func ParseFamily(s string) (Family, error) {
	switch s {
	case string(FamilyWorkout), "workouts":
		return FamilyWorkout, nil
	case string(FamilyAccount), "accounts":
		return FamilyAccount, nil
	case string(FamilyGymPlan), "gym-plans", "gym_plans":
		return FamilyGymPlan, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
}

// PathSegment is the family's name in remote API URLs.
func (f Family) PathSegment() string {
	switch f {
	case FamilyWorkout:
		return "workouts"
	case FamilyAccount:
		return "accounts"
	case FamilyGymPlan:
		return "gym-plans"
	}
	return string(f)
}

// SyncMeta carries the identity and dirty state shared by every syncable entity.
// Embed it inline so the fields live at the top level of the stored document.
type SyncMeta struct {
	LocalID   string    `bson:"_id" json:"localId"`
	RemoteID  *string   `bson:"remoteId" json:"remoteId,omitempty"` // nil until the server acknowledges a create
	IsDirty   bool      `bson:"isDirty" json:"isDirty"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	// Revision increments on every local mutation. An upload ack only clears
	// IsDirty when the revision it serialized is still current.
	Revision int64 `bson:"revision" json:"revision"`

	// AssetPending is set while a secondary asset is held locally but not yet
	// acknowledged by the asset store. It is independent of IsDirty.
	AssetPending bool `bson:"assetPending" json:"assetPending"`
}

// Meta returns the embedded metadata so generic code can reach it through the Entity interface.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// NewSyncMeta initialises metadata for an entity created locally.
func NewSyncMeta() SyncMeta {
	return SyncMeta{
		LocalID:   uuid.NewString(),
		IsDirty:   true,
		UpdatedAt: time.Now().UTC(),
		Revision:  1,
	}
}

// Touch records a local mutation.
func (m *SyncMeta) Touch() {
	m.IsDirty = true
	m.Revision++
	m.UpdatedAt = time.Now().UTC()
}

// NeedsUpload reports whether the entity must be created or patched on the server.
func (m *SyncMeta) NeedsUpload() bool {
	return m.RemoteID == nil || m.IsDirty
}

// HasRemoteID is a nil-safe check used by the create/patch decision.
func (m *SyncMeta) HasRemoteID() bool {
	return m.RemoteID != nil && *m.RemoteID != ""
}

// RemoteIDValue returns the remote id or an empty string.
func (m *SyncMeta) RemoteIDValue() string {
	if m.RemoteID == nil {
		return ""
	}
	return *m.RemoteID
}

// SetRemoteID stores a copy of id.
func (m *SyncMeta) SetRemoteID(id string) {
	m.RemoteID = &id
}

// Entity is implemented by pointers to every syncable type.
type Entity interface {
	Meta() *SyncMeta
}

// Checkpoint marks how much server history a family has pulled.
type Checkpoint struct {
	Family          Family    `bson:"_id" json:"family"`
	LastPulledAt    time.Time `bson:"lastPulledAt" json:"lastPulledAt"`
	InitialPullDone bool      `bson:"initialPullDone" json:"initialPullDone"`
}

// Since returns the pull lower bound, or nil when nothing has been pulled yet.
func (c Checkpoint) Since() *time.Time {
	if c.LastPulledAt.IsZero() {
		return nil
	}
	t := c.LastPulledAt
	return &t
}

// RemoteRecord is one server-side change returned by a pull.
type RemoteRecord struct {
	Family    Family          `json:"family"`
	Kind      string          `json:"kind,omitempty"` // discriminator for the concrete sub-type
	LocalID   string          `json:"localId,omitempty"`
	RemoteID  string          `json:"remoteId"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Payload   json.RawMessage `json:"payload"`
	AssetURL  string          `json:"assetUrl,omitempty"`
}

// Ack is the server's acknowledgment of a create or patch. LocalID echoes the
// client's id so the entity can be re-located after the round trip.
type Ack struct {
	RemoteID string `json:"remoteId"`
	LocalID  string `json:"localId"`
}
