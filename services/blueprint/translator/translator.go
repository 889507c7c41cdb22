// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package translator maps a positional signal onto bounded trait scores.
//
// Translation is a pure function of the signal and the layer id. The score
// formula is total (never undefined) and monotonic in both inputs: more
// relations and stronger sector occupancy never lower a score.
package translator

import (
	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
)

// -----------------------------------------------------------------------------
// Score Formula Constants
// -----------------------------------------------------------------------------

const (
	// baseScore is the floor contribution every placed body starts from.
	baseScore = 0.45

	// relationWeight is the per-relation contribution, capped at relationCap.
	relationWeight = 0.05
	relationCap    = 0.25

	// houseFactor scales the sector occupancy weight.
	houseFactor = 0.35

	// scoreCap bounds the formula output.
	scoreCap = 0.95

	// neutralScore is returned when the layer's primary body is missing
	// from the signal entirely.
	neutralScore = 0.5

	// GeneratedConfidence is the fixed post-generation confidence. Only
	// recalibration moves confidence, and only upward.
	GeneratedConfidence = 0.8
)

// -----------------------------------------------------------------------------
// Translator
// -----------------------------------------------------------------------------

// Translator computes trait scores from positional signals.
//
// Thread Safety: stateless; safe for concurrent use.
type Translator struct {
	lex *lexicon.Lexicon
}

// New creates a Translator over the given tables.
func New(lex *lexicon.Lexicon) *Translator {
	return &Translator{lex: lex}
}

// Translate derives the trait score for one layer.
//
// Inputs:
//
//	signal - The captured positional signal.
//	layerID - Layer to score, 1..15.
//
// Outputs:
//
//	datatypes.TraitScore - Always well-formed. A missing primary body
//	yields the neutral placeholder score rather than an error.
//	error - Non-nil only for a layer id outside 1..15.
func (t *Translator) Translate(signal *datatypes.PositionalSignal, layerID int) (datatypes.TraitScore, error) {
	layer := t.lex.Layer(layerID)
	if layer == nil {
		return datatypes.TraitScore{}, datatypes.ErrUnknownLayer
	}

	score := datatypes.TraitScore{
		LayerID:    layerID,
		TraitKey:   layer.Trait,
		Score:      neutralScore,
		Confidence: GeneratedConfidence,
	}

	body := signal.FindBody(layer.Body)
	if body == nil {
		return score, nil
	}

	relationPart := float64(signal.RelationCount(layer.Body)) * relationWeight
	if relationPart > relationCap {
		relationPart = relationCap
	}

	raw := baseScore + relationPart + t.lex.HouseWeight(body.House)*houseFactor
	if raw > scoreCap {
		raw = scoreCap
	}

	score.Score = datatypes.ClampScore(raw)
	return score, nil
}

// TranslateAll scores every layer in order. Partial failure is impossible
// by construction: the only error is an unknown layer id, which cannot
// occur when iterating the fixed table.
func (t *Translator) TranslateAll(signal *datatypes.PositionalSignal) []datatypes.TraitScore {
	traits := make([]datatypes.TraitScore, 0, datatypes.LayerCount)
	for _, layer := range t.lex.Layers {
		score, _ := t.Translate(signal, layer.ID)
		traits = append(traits, score)
	}
	return traits
}
