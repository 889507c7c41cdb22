// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recalibration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
	"github.com/originseedlabs/originseed/services/blueprint/observability"
)

// SnapshotChain is the store surface the engine writes through.
// Satisfied by store.SnapshotStore.
type SnapshotChain interface {
	GetLatest(ctx context.Context, subjectID string) (*datatypes.BlueprintSnapshot, error)
	AppendSnapshot(ctx context.Context, snap *datatypes.BlueprintSnapshot) error
}

// Engine applies feedback events to a subject's chain.
//
// Thread Safety: safe for concurrent use. The store's head check rejects
// the loser of a concurrent append; callers retry by re-reading.
type Engine struct {
	lex       *lexicon.Lexicon
	chain     SnapshotChain
	sentiment SentimentClassifier
	logger    *slog.Logger
}

// NewEngine builds the engine. A nil classifier falls back to the keyword
// heuristic over the lexicon word lists.
func NewEngine(lex *lexicon.Lexicon, chain SnapshotChain, sentiment SentimentClassifier, logger *slog.Logger) *Engine {
	if sentiment == nil {
		sentiment = NewKeywordClassifier(lex.Sentiment)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		lex:       lex,
		chain:     chain,
		sentiment: sentiment,
		logger:    logger.With(slog.String("component", "recalibration_engine")),
	}
}

// ApplyFeedback consumes one feedback event against one layer and appends
// the resulting snapshot.
//
// A zero delta still produces a snapshot: the confidence boost applies
// either way, and the chain records that the subject engaged.
//
// Inputs:
//
//	subjectID - Chain owner.
//	layerID - Layer the feedback addresses, 1..15.
//	fb - Validated feedback event.
//
// Outputs:
//
//	*datatypes.RecalibrationResult - Applied movement, never nil on
//	success.
//	error - Shape errors, datatypes.ErrNoProfile, datatypes.ErrUnknownLayer,
//	or a storage failure.
func (e *Engine) ApplyFeedback(ctx context.Context, subjectID string, layerID int, fb *datatypes.Feedback) (*datatypes.RecalibrationResult, error) {
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	if e.lex.Layer(layerID) == nil {
		return nil, datatypes.ErrUnknownLayer
	}

	latest, err := e.chain.GetLatest(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	delta := e.delta(fb)
	trait := latest.Trait(layerID)
	previousScore := trait.Score
	newScore := datatypes.ClampScore(previousScore + delta)

	traits := latest.CloneTraits()
	updated := &traits[layerID-1]
	updated.Score = newScore
	updated.Confidence = raiseConfidence(updated.Confidence, confidenceBoost(fb.Kind))

	snap := &datatypes.BlueprintSnapshot{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		Timestamp:  time.Now().UTC(),
		Source:     fb.Source(),
		Traits:     traits,
		PreviousID: latest.ID,
	}
	if err := e.chain.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	applied := newScore - previousScore
	direction := datatypes.ClassifyDirection(applied)
	observability.Metrics().RecalibrationsTotal.WithLabelValues(string(fb.Kind), direction).Inc()

	e.logger.Info("feedback applied",
		slog.String("subject_id", subjectID),
		slog.Int("layer_id", layerID),
		slog.String("kind", string(fb.Kind)),
		slog.Float64("delta", applied),
		slog.String("direction", direction))

	return &datatypes.RecalibrationResult{
		PreviousScore: previousScore,
		NewScore:      newScore,
		Delta:         applied,
		Direction:     direction,
		NewSnapshotID: snap.ID,
	}, nil
}

// delta routes the event to its kind's mapping. Out-of-domain values
// inside a valid shape land here as zero.
func (e *Engine) delta(fb *datatypes.Feedback) float64 {
	switch fb.Kind {
	case datatypes.FeedbackLikert:
		return likertDelta(fb.Likert)
	case datatypes.FeedbackCard:
		return cardDelta(fb.Card, e.lex)
	case datatypes.FeedbackReflection:
		return reflectionDelta(e.sentiment.Classify(fb.Reflection.Text))
	}
	return 0
}
