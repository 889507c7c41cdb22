// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package profile orchestrates the blueprint lifecycle: capture a signal,
// translate it into trait scores, synthesize narratives, and hand the
// resulting snapshots to the store. Everything request-scoped enters
// through this package; the packages below it are wiring-free.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
	"github.com/originseedlabs/originseed/services/blueprint/narrative"
	"github.com/originseedlabs/originseed/services/blueprint/observability"
	"github.com/originseedlabs/originseed/services/blueprint/recalibration"
	"github.com/originseedlabs/originseed/services/blueprint/store"
	"github.com/originseedlabs/originseed/services/blueprint/translator"
)

// ErrProfileExists is returned when foundational generation is requested
// for a subject that already has a chain. Regeneration is the explicit
// path for starting over.
var ErrProfileExists = errors.New("profile already exists for subject")

// Service is the blueprint core's application layer.
//
// Thread Safety: safe for concurrent use. Chain consistency under
// concurrent writes is enforced by the store's head check.
type Service struct {
	store     *store.SnapshotStore
	source    SignalSource
	translate *translator.Translator
	engine    *narrative.Engine
	recal     *recalibration.Engine
	selector  *recalibration.Selector
	logger    *slog.Logger
}

// NewService wires the core together.
func NewService(
	st *store.SnapshotStore,
	source SignalSource,
	lex *lexicon.Lexicon,
	engine *narrative.Engine,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		source:    source,
		translate: translator.New(lex),
		engine:    engine,
		recal:     recalibration.NewEngine(lex, st, nil, logger),
		selector:  recalibration.NewSelector(lex, st),
		logger:    logger.With(slog.String("component", "profile_service")),
	}
}

// -----------------------------------------------------------------------------
// Generation
// -----------------------------------------------------------------------------

// GenerateProfile runs foundational generation for a new subject.
//
// Inputs:
//
//	subjectID - Chain owner. Must not already have a profile.
//	birth - Validated coordinates forwarded to the signal source.
//
// Outputs:
//
//	*datatypes.BlueprintSnapshot - The foundational snapshot.
//	error - ErrProfileExists, ErrSignalSourceUnavailable, or a storage
//	failure. Narrative synthesis itself cannot fail.
func (s *Service) GenerateProfile(ctx context.Context, subjectID string, birth datatypes.BirthData) (*datatypes.BlueprintSnapshot, error) {
	if err := birth.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetLatest(ctx, subjectID); err == nil {
		return nil, fmt.Errorf("%w: subject %s", ErrProfileExists, subjectID)
	} else if !errors.Is(err, datatypes.ErrNoProfile) {
		return nil, err
	}

	started := time.Now()
	snap, err := s.generate(ctx, subjectID, birth, datatypes.SourceFoundational, "")
	if err != nil {
		return nil, err
	}
	observability.Metrics().ProfileGenerationSeconds.
		WithLabelValues(string(datatypes.SourceFoundational)).
		Observe(time.Since(started).Seconds())
	return snap, nil
}

// Regenerate recaptures the signal and rebuilds the profile from scratch.
// The chain is not reset: the regeneration snapshot links to the current
// head, so history survives.
func (s *Service) Regenerate(ctx context.Context, subjectID string, birth datatypes.BirthData) (*datatypes.BlueprintSnapshot, error) {
	if err := birth.Validate(); err != nil {
		return nil, err
	}

	head, err := s.store.GetLatest(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	snap, err := s.generate(ctx, subjectID, birth, datatypes.SourceRegeneration, head.ID)
	if err != nil {
		return nil, err
	}
	observability.Metrics().ProfileGenerationSeconds.
		WithLabelValues(string(datatypes.SourceRegeneration)).
		Observe(time.Since(started).Seconds())
	return snap, nil
}

// generate is the shared capture-translate-synthesize-persist pipeline.
func (s *Service) generate(ctx context.Context, subjectID string, birth datatypes.BirthData,
	source datatypes.SnapshotSource, previousID string) (*datatypes.BlueprintSnapshot, error) {

	signal, meta, err := s.source.Compute(ctx, birth)
	if err != nil {
		return nil, err
	}

	signalSnap := &datatypes.SignalSnapshot{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Signal:    *signal,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	// Uniqueness is gated on the chain head, checked by the caller, not on
	// the signal slot. A capture orphaned by a run that died before its
	// blueprint snapshot landed is overwritten on the next attempt.
	allowReplace := source == datatypes.SourceRegeneration || previousID == ""
	if err := s.store.CreateSignalSnapshot(ctx, signalSnap, allowReplace); err != nil {
		return nil, err
	}

	traits := s.translate.TranslateAll(signal)
	s.synthesize(ctx, subjectID, signal, traits, 0)

	snap := &datatypes.BlueprintSnapshot{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Timestamp:   time.Now().UTC(),
		Source:      source,
		Traits:      traits,
		DerivedFrom: signalSnap.ID,
		PreviousID:  previousID,
	}
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	s.logger.Info("profile generated",
		slog.String("subject_id", subjectID),
		slog.String("source", string(source)),
		slog.String("snapshot_id", snap.ID))
	return snap, nil
}

// synthesize fills trait descriptions in place, one run-scoped dedup
// buffer across all fifteen layers.
func (s *Service) synthesize(ctx context.Context, subjectID string, signal *datatypes.PositionalSignal,
	traits []datatypes.TraitScore, iteration int) {

	buf := narrative.NewDedupBuffer()
	for i := range traits {
		n, err := s.engine.Synthesize(ctx, subjectID, traits[i].LayerID, signal, iteration, buf)
		if err != nil {
			// Unreachable for table-driven layer ids; leave the
			// description empty rather than abort the run.
			s.logger.Error("narrative synthesis failed",
				slog.String("subject_id", subjectID),
				slog.Int("layer_id", traits[i].LayerID),
				slog.String("error", err.Error()))
			continue
		}
		traits[i].Description = n.Text
	}
}

// Resynthesize rewrites every narrative from the stored signal without
// touching scores. Each call uses the next refinement iteration, so the
// phrasing changes while staying deterministic per iteration.
func (s *Service) Resynthesize(ctx context.Context, subjectID string) (*datatypes.BlueprintSnapshot, error) {
	head, err := s.store.GetLatest(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	signalSnap, err := s.store.GetLatestSignal(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	iteration, err := s.nextRefinementIteration(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	traits := head.CloneTraits()
	s.synthesize(ctx, subjectID, &signalSnap.Signal, traits, iteration)

	snap := &datatypes.BlueprintSnapshot{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Timestamp:   time.Now().UTC(),
		Source:      datatypes.SourceRefinement,
		Traits:      traits,
		DerivedFrom: signalSnap.ID,
		PreviousID:  head.ID,
	}
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	observability.Metrics().ProfileGenerationSeconds.
		WithLabelValues(string(datatypes.SourceRefinement)).
		Observe(time.Since(started).Seconds())

	s.logger.Info("profile resynthesized",
		slog.String("subject_id", subjectID),
		slog.Int("iteration", iteration),
		slog.String("snapshot_id", snap.ID))
	return snap, nil
}

// nextRefinementIteration counts prior refinements so each resynthesis
// draws from a fresh seed.
func (s *Service) nextRefinementIteration(ctx context.Context, subjectID string) (int, error) {
	chain, err := s.store.GetHistory(ctx, subjectID, 0)
	if err != nil {
		return 0, err
	}
	iteration := 1
	for _, snap := range chain {
		if snap.Source == datatypes.SourceRefinement {
			iteration++
		}
	}
	return iteration, nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// GetProfile returns the subject's current snapshot.
func (s *Service) GetProfile(ctx context.Context, subjectID string) (*datatypes.BlueprintSnapshot, error) {
	return s.store.GetLatest(ctx, subjectID)
}

// GetHistory returns the chain newest first, bounded by maxDepth
// (<= 0 for the full chain).
func (s *Service) GetHistory(ctx context.Context, subjectID string, maxDepth int) ([]*datatypes.BlueprintSnapshot, error) {
	return s.store.GetHistory(ctx, subjectID, maxDepth)
}

// GetSnapshot returns one snapshot by id.
func (s *Service) GetSnapshot(ctx context.Context, snapshotID string) (*datatypes.BlueprintSnapshot, error) {
	return s.store.GetSnapshot(ctx, snapshotID)
}

// -----------------------------------------------------------------------------
// Feedback
// -----------------------------------------------------------------------------

// SubmitFeedback applies one feedback event to one layer.
func (s *Service) SubmitFeedback(ctx context.Context, subjectID string, layerID int, fb *datatypes.Feedback) (*datatypes.RecalibrationResult, error) {
	return s.recal.ApplyFeedback(ctx, subjectID, layerID, fb)
}

// NextQuestion serves the next calibration card for the subject.
func (s *Service) NextQuestion(ctx context.Context, subjectID string) (*recalibration.Question, error) {
	return s.selector.NextQuestion(ctx, subjectID)
}

// ChainSummary proxies the graph-side analytics view.
func (s *Service) ChainSummary(ctx context.Context, subjectID string) (*store.SubjectChainSummary, error) {
	return s.store.ChainSummary(ctx, subjectID)
}

// GraphAvailable reports storage degradation state for health surfaces.
func (s *Service) GraphAvailable() bool {
	return s.store.GraphAvailable()
}
