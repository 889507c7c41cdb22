// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the data model for the blueprint core.
//
// Everything here is plain data: the positional signal consumed from the
// external chart calculator, the immutable snapshot types the store persists,
// and the feedback shapes the recalibration engine accepts. Snapshots are
// never mutated after creation; a changed trait always produces a new
// snapshot linked to its predecessor.
package datatypes

import (
	"fmt"
	"time"
)

// =============================================================================
// Positional Signal
// =============================================================================

// Relation kinds produced by the external calculator. The core only ever
// classifies them as friction or ease; unknown kinds count as neither.
const (
	RelationConjunction = "conjunction"
	RelationSextile     = "sextile"
	RelationTrine       = "trine"
	RelationSquare      = "square"
	RelationOpposition  = "opposition"
	RelationQuincunx    = "quincunx"
)

// Body is a single positioned body inside a PositionalSignal.
type Body struct {
	// Name identifies the body (e.g. "sun", "moon"). Lowercase by convention
	// of the calculator service.
	Name string `json:"name" validate:"required"`

	// Sign is the zodiacal sign the body occupies, lowercase.
	Sign string `json:"sign" validate:"required"`

	// Longitude is the ecliptic longitude in degrees [0, 360).
	Longitude float64 `json:"longitude" validate:"gte=0,lt=360"`

	// House is the sector the body occupies, 1..12. Zero means the
	// calculator could not place the body (no birth time).
	House int `json:"house" validate:"gte=0,lte=12"`

	// Speed is the daily motion in degrees. Negative while retrograde.
	Speed float64 `json:"speed"`

	// Retrograde reports apparent backward motion.
	Retrograde bool `json:"retrograde"`
}

// Relation is an angular relationship between two bodies.
type Relation struct {
	BodyA string `json:"body_a" validate:"required"`
	BodyB string `json:"body_b" validate:"required"`

	// Kind is one of the Relation* constants.
	Kind string `json:"kind" validate:"required"`

	// Orb is the deviation from exactness in degrees.
	Orb float64 `json:"orb" validate:"gte=0"`

	// Applying is true when the relation is still tightening.
	Applying bool `json:"applying"`
}

// PositionalSignal is the continuous input the trait profile is derived
// from. The core places no constraints on how it is computed, only on its
// shape. It is captured once per generation event and never recomputed from
// a later snapshot.
type PositionalSignal struct {
	Bodies    []Body     `json:"bodies" validate:"required,min=1,dive"`
	Relations []Relation `json:"relations" validate:"dive"`
}

// FindBody returns the named body, or nil if the signal does not carry it.
func (s *PositionalSignal) FindBody(name string) *Body {
	for i := range s.Bodies {
		if s.Bodies[i].Name == name {
			return &s.Bodies[i]
		}
	}
	return nil
}

// RelationCount counts relations involving the named body.
func (s *PositionalSignal) RelationCount(name string) int {
	count := 0
	for _, r := range s.Relations {
		if r.BodyA == name || r.BodyB == name {
			count++
		}
	}
	return count
}

// =============================================================================
// Signal Snapshot
// =============================================================================

// SignalMetadata describes how a signal capture was produced.
type SignalMetadata struct {
	// CalcVersion is the version tag reported by the calculator service.
	CalcVersion string `json:"calc_version"`

	// CoordinateSource records where the birth coordinates came from
	// (e.g. "user_entry", "geocoded").
	CoordinateSource string `json:"coordinate_source"`

	// QualityFlag marks degraded captures (e.g. "no_birth_time").
	QualityFlag string `json:"quality_flag"`
}

// SignalSnapshot is the raw, write-once capture of a PositionalSignal plus
// generation metadata. Created at profile genesis or explicit regeneration
// and read-only afterward.
type SignalSnapshot struct {
	ID        string           `json:"id" validate:"required"`
	SubjectID string           `json:"subject_id" validate:"required"`
	Signal    PositionalSignal `json:"signal" validate:"required"`
	Metadata  SignalMetadata   `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// =============================================================================
// Birth Data
// =============================================================================

// BirthData is the coordinate input forwarded to the external calculator.
// The core never interprets it beyond validation.
type BirthData struct {
	Date      string  `json:"date" validate:"required"`
	Time      string  `json:"time"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Timezone  string  `json:"timezone"`
}

// Validate checks coordinate ranges and date formats. Time is optional;
// when present it must parse, and its absence downgrades capture quality
// downstream rather than failing here.
func (b *BirthData) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBirthData, err)
	}
	if _, err := time.Parse("2006-01-02", b.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidBirthData)
	}
	if b.Time != "" {
		if _, err := time.Parse("15:04", b.Time); err != nil {
			return fmt.Errorf("%w: time must be HH:MM", ErrInvalidBirthData)
		}
	}
	return nil
}
