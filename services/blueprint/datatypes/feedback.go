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
)

// =============================================================================
// Feedback (tagged union)
// =============================================================================

// FeedbackKind discriminates the three feedback shapes.
type FeedbackKind string

const (
	FeedbackLikert     FeedbackKind = "likert"
	FeedbackCard       FeedbackKind = "card"
	FeedbackReflection FeedbackKind = "reflection"
)

// LikertDirection is the framing of a Likert question. A negatively framed
// question flips the sign of the normalized answer.
type LikertDirection string

const (
	DirectionPositive LikertDirection = "positive"
	DirectionNegative LikertDirection = "negative"
)

// LikertFeedback is a 1..4 scale answer. Values outside the domain are
// treated as zero-effect input, never as an error.
type LikertFeedback struct {
	Value     int             `json:"value"`
	Direction LikertDirection `json:"direction"`
}

// CardFeedback is a tap on a structured calibration card.
type CardFeedback struct {
	// CardID identifies the card inside the per-layer pool.
	CardID string `json:"card_id"`

	// CardType selects the option list ("agreement" or "resonance").
	CardType string `json:"card_type"`

	// SelectedOption is the zero-based index into the card's option list.
	// Out-of-range indices are zero-effect input.
	SelectedOption int `json:"selected_option"`
}

// ReflectionFeedback is a free-text reflection.
type ReflectionFeedback struct {
	Text string `json:"text"`

	// ExperimentID is set when the reflection came out of a thought
	// experiment rather than an ordinary prompt.
	ExperimentID string `json:"experiment_id,omitempty"`
}

// ErrInvalidFeedback is returned when a feedback event fails shape
// validation (a missing variant for its kind, not an out-of-range value).
var ErrInvalidFeedback = errors.New("invalid feedback event")

// Feedback is a discriminated feedback event. Exactly the variant named by
// Kind must be present. Consumed exactly once to produce exactly one new
// snapshot; never persisted as mutable state.
type Feedback struct {
	Kind      FeedbackKind `json:"kind" validate:"required"`
	SessionID string       `json:"session_id,omitempty"`

	Likert     *LikertFeedback     `json:"likert,omitempty"`
	Card       *CardFeedback       `json:"card,omitempty"`
	Reflection *ReflectionFeedback `json:"reflection,omitempty"`
}

// Validate checks the union discriminant. Out-of-domain values inside a
// variant are deliberately not rejected here; the recalibration engine maps
// them to a zero delta to stay safe against malformed clients.
func (f *Feedback) Validate() error {
	switch f.Kind {
	case FeedbackLikert:
		if f.Likert == nil {
			return fmt.Errorf("%w: likert payload missing", ErrInvalidFeedback)
		}
	case FeedbackCard:
		if f.Card == nil {
			return fmt.Errorf("%w: card payload missing", ErrInvalidFeedback)
		}
	case FeedbackReflection:
		if f.Reflection == nil {
			return fmt.Errorf("%w: reflection payload missing", ErrInvalidFeedback)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFeedback, f.Kind)
	}
	return nil
}

// Source returns the snapshot source tag for this feedback shape. A
// reflection is tagged thought_experiment only when it came out of an
// experiment; an ordinary reflection recalibrates like any other feedback.
func (f *Feedback) Source() SnapshotSource {
	switch f.Kind {
	case FeedbackCard:
		return SourceCalibration
	case FeedbackReflection:
		if f.Reflection != nil && f.Reflection.ExperimentID != "" {
			return SourceThoughtExperiment
		}
		return SourceRecalibration
	default:
		return SourceRecalibration
	}
}

// =============================================================================
// Recalibration Result
// =============================================================================

// Direction labels for the caller, derived from the applied delta.
const (
	ResultStrengthened = "strengthened"
	ResultSoftened     = "softened"
	ResultStable       = "stable"
)

// DirectionThreshold separates a stable result from a real movement.
const DirectionThreshold = 0.005

// RecalibrationResult reports one applied feedback event.
type RecalibrationResult struct {
	PreviousScore float64 `json:"previous_score"`
	NewScore      float64 `json:"new_score"`
	Delta         float64 `json:"delta"`
	Direction     string  `json:"direction"`
	NewSnapshotID string  `json:"new_snapshot_id"`
}

// ClassifyDirection maps a delta to its caller-facing label.
func ClassifyDirection(delta float64) string {
	switch {
	case delta > DirectionThreshold:
		return ResultStrengthened
	case delta < -DirectionThreshold:
		return ResultSoftened
	default:
		return ResultStable
	}
}
