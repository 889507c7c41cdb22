// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package recalibration turns feedback events into bounded trait
// adjustments. One event in, one new snapshot out; malformed or
// out-of-domain feedback yields a zero delta, never an error, so a bad
// client cannot corrupt a chain or lose a write.
package recalibration

import (
	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
)

// Feedback delta rates. A single event can never move a score by more
// than the Likert extreme (0.05); confidence rises fastest on structured
// card answers because those carry the least ambiguity.
const (
	likertRate   = 0.05
	freeTextRate = 0.04

	cardConfidenceBoost       = 0.03
	likertConfidenceBoost     = 0.02
	reflectionConfidenceBoost = 0.015
)

// likertDelta maps a 1..4 scale answer to a score delta in
// [-likertRate, +likertRate]. The scale midpoint is 2.5; answers below it
// push the score down, above it up, and a negative framing flips the sign.
// Values outside 1..4 are zero-effect.
func likertDelta(f *datatypes.LikertFeedback) float64 {
	if f.Value < 1 || f.Value > 4 {
		return 0
	}
	delta := (float64(f.Value) - 2.5) / 1.5 * likertRate
	if f.Direction == datatypes.DirectionNegative {
		delta = -delta
	}
	return delta
}

// cardDelta looks the selected option up in the card type's fixed option
// list. Unknown card types and out-of-range selections are zero-effect.
func cardDelta(f *datatypes.CardFeedback, lex *lexicon.Lexicon) float64 {
	options, ok := lex.CardOptions[f.CardType]
	if !ok {
		return 0
	}
	if f.SelectedOption < 0 || f.SelectedOption >= len(options) {
		return 0
	}
	return options[f.SelectedOption]
}

// confidenceBoost returns the per-kind confidence increment.
func confidenceBoost(kind datatypes.FeedbackKind) float64 {
	switch kind {
	case datatypes.FeedbackCard:
		return cardConfidenceBoost
	case datatypes.FeedbackLikert:
		return likertConfidenceBoost
	case datatypes.FeedbackReflection:
		return reflectionConfidenceBoost
	}
	return 0
}

// raiseConfidence applies a boost under the ceiling. Confidence never
// decreases, whatever the feedback said.
func raiseConfidence(current, boost float64) float64 {
	next := current + boost
	if next > datatypes.ConfidenceCeil {
		return datatypes.ConfidenceCeil
	}
	if next < current {
		return current
	}
	return next
}
