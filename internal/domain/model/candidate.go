// Package model contains domain models passed between layers.
package model

import "strings"

// PartitionAll selects every gender when ranking.
const PartitionAll = "all"

// Gender is a member of the configured gender enumeration, e.g. "male".
type Gender string

// Normalize lower-cases and trims a raw gender value.
func (g Gender) Normalize() Gender {
	return Gender(strings.ToLower(strings.TrimSpace(string(g))))
}

// Candidate is a competitor registered for the event.
type Candidate struct {
	ID       string `json:"id"`     // opaque identifier (uuid)
	Number   int    `json:"number"` // display number, unique per gender among active candidates
	Name     string `json:"name"`
	Gender   Gender `json:"gender"`
	ImageURL string `json:"image_url,omitempty"`
	Active   bool   `json:"active"`
}

// SameSlot reports whether two candidates share the (number, gender) slot.
func (c Candidate) SameSlot(other Candidate) bool {
	return c.Number == other.Number && c.Gender.Normalize() == other.Gender.Normalize()
}
