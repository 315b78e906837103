package types

import "time"

// Entity carries creation and modification timestamps for escrow records.
// Timestamps come from the engine clock so that replays are deterministic.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntityAt creates an Entity stamped with t (normalized to UTC).
func NewEntityAt(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// TouchAt updates the UpdatedAt timestamp.
func (e *Entity) TouchAt(t time.Time) {
	e.UpdatedAt = t.UTC()
}
