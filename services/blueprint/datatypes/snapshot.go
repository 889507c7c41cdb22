// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// LayerCount is the number of trait dimensions in a blueprint.
	LayerCount = 15

	// ScoreFloor and ScoreCeil bound every trait score.
	ScoreFloor = 0.01
	ScoreCeil  = 0.99

	// ConfidenceCeil bounds trait confidence. Confidence only ever rises.
	ConfidenceCeil = 0.99
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is the validator instance for blueprint datatypes.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// =============================================================================
// Trait Score
// =============================================================================

// TraitScore is the scored state of one layer inside one snapshot.
// Immutable once created; a changed trait produces a new TraitScore inside a
// new snapshot, never an in-place mutation.
type TraitScore struct {
	LayerID    int     `json:"layer_id" validate:"gte=1,lte=15"`
	TraitKey   string  `json:"trait_key" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0.01,lte=0.99"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=0.99"`

	// Description is the synthesized narrative for this layer. Optional on
	// recalibration snapshots, which carry scores forward unchanged.
	Description string `json:"description,omitempty"`
}

// ClampScore bounds a raw score to the permitted range.
func ClampScore(score float64) float64 {
	if score < ScoreFloor {
		return ScoreFloor
	}
	if score > ScoreCeil {
		return ScoreCeil
	}
	return score
}

// =============================================================================
// Snapshot Source
// =============================================================================

// SnapshotSource tags the event that produced a blueprint snapshot.
type SnapshotSource string

const (
	SourceFoundational      SnapshotSource = "foundational"
	SourceRefinement        SnapshotSource = "refinement"
	SourceRecalibration     SnapshotSource = "recalibration"
	SourceThoughtExperiment SnapshotSource = "thought_experiment"
	SourceCalibration       SnapshotSource = "calibration"
	SourceRegeneration      SnapshotSource = "regeneration"
)

// Valid reports whether the source is one of the defined tags.
func (s SnapshotSource) Valid() bool {
	switch s {
	case SourceFoundational, SourceRefinement, SourceRecalibration,
		SourceThoughtExperiment, SourceCalibration, SourceRegeneration:
		return true
	}
	return false
}

// =============================================================================
// Blueprint Snapshot
// =============================================================================

// ErrInvalidSnapshot is returned when a snapshot fails boundary validation.
var ErrInvalidSnapshot = errors.New("invalid blueprint snapshot")

// BlueprintSnapshot is one immutable state of a subject's trait profile.
//
// For any subject, following PreviousID links forms a single acyclic chain
// terminating at the foundational snapshot. The store exposes exactly one
// latest pointer per subject, atomically repointed on every write.
type BlueprintSnapshot struct {
	ID        string         `json:"id" validate:"required"`
	SubjectID string         `json:"subject_id" validate:"required"`
	Timestamp time.Time      `json:"timestamp"`
	Source    SnapshotSource `json:"source" validate:"required"`

	// Traits always carries all fifteen layers, ordered by LayerID.
	Traits []TraitScore `json:"traits" validate:"len=15,dive"`

	// DerivedFrom links foundational and regeneration snapshots to the
	// SignalSnapshot they were translated from.
	DerivedFrom string `json:"derived_from,omitempty"`

	// PreviousID links to the prior latest snapshot. Empty only on the
	// foundational snapshot of a chain.
	PreviousID string `json:"previous_id,omitempty"`
}

// Validate checks snapshot shape at the store boundary. Downstream
// consumers can rely on a validated snapshot carrying exactly fifteen
// ordered trait scores and a known source tag.
func (b *BlueprintSnapshot) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if !b.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidSnapshot, b.Source)
	}
	for i, tr := range b.Traits {
		if tr.LayerID != i+1 {
			return fmt.Errorf("%w: trait %d has layer id %d", ErrInvalidSnapshot, i, tr.LayerID)
		}
	}
	return nil
}

// Trait returns the score for the given layer, or nil if out of range.
func (b *BlueprintSnapshot) Trait(layerID int) *TraitScore {
	if layerID < 1 || layerID > len(b.Traits) {
		return nil
	}
	return &b.Traits[layerID-1]
}

// CloneTraits returns a deep copy of the trait slice, for building a
// successor snapshot without touching the original.
func (b *BlueprintSnapshot) CloneTraits() []TraitScore {
	out := make([]TraitScore, len(b.Traits))
	copy(out, b.Traits)
	return out
}
