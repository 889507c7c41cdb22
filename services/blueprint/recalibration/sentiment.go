// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recalibration

import (
	"strings"

	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
)

// minReflectionWords gates free-text input. Shorter text carries too
// little signal to move a score.
const minReflectionWords = 5

// magnitudeWordCap is where reflection length stops adding weight.
const magnitudeWordCap = 25

// SentimentClassifier scores free text in [-1, 1]. Positive values affirm
// the trait reading, negative values challenge it, zero is neutral or
// unusable input.
type SentimentClassifier interface {
	Classify(text string) float64
}

// keywordClassifier is the fixed word-list heuristic. Deliberately crude:
// the rate cap bounds the damage of a misread, and determinism matters
// more here than accuracy.
type keywordClassifier struct {
	affirm    map[string]struct{}
	challenge map[string]struct{}
}

// NewKeywordClassifier builds the classifier from the lexicon word lists.
func NewKeywordClassifier(lists lexicon.SentimentLists) SentimentClassifier {
	kc := &keywordClassifier{
		affirm:    make(map[string]struct{}, len(lists.Affirm)),
		challenge: make(map[string]struct{}, len(lists.Challenge)),
	}
	for _, w := range lists.Affirm {
		kc.affirm[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range lists.Challenge {
		kc.challenge[strings.ToLower(w)] = struct{}{}
	}
	return kc
}

// Classify scores the text by keyword hits, scaled by length up to the
// word cap. Text under the word gate scores zero.
func (kc *keywordClassifier) Classify(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < minReflectionWords {
		return 0
	}

	affirms, challenges := 0, 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"()")
		if _, ok := kc.affirm[w]; ok {
			affirms++
		}
		if _, ok := kc.challenge[w]; ok {
			challenges++
		}
	}
	if affirms == challenges {
		return 0
	}

	// Longer reflections carry more weight, up to the cap.
	magnitude := float64(len(words)) / magnitudeWordCap
	if magnitude > 1 {
		magnitude = 1
	}

	if affirms > challenges {
		return magnitude
	}
	return -magnitude
}

// reflectionDelta converts a sentiment score into a trait delta.
func reflectionDelta(sentiment float64) float64 {
	return sentiment * freeTextRate
}
