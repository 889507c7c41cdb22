// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
	"github.com/originseedlabs/originseed/services/blueprint/narrative"
	"github.com/originseedlabs/originseed/services/blueprint/store"
)

// cannedSource returns a fixed signal without a network hop.
type cannedSource struct {
	signal *datatypes.PositionalSignal
	meta   datatypes.SignalMetadata
	err    error
	calls  int
}

func (c *cannedSource) Compute(_ context.Context, _ datatypes.BirthData) (*datatypes.PositionalSignal, datatypes.SignalMetadata, error) {
	c.calls++
	if c.err != nil {
		return nil, datatypes.SignalMetadata{}, c.err
	}
	return c.signal, c.meta, nil
}

func testSignal() *datatypes.PositionalSignal {
	return &datatypes.PositionalSignal{
		Bodies: []datatypes.Body{
			{Name: "sun", Sign: "aries", Longitude: 12.5, House: 1},
			{Name: "moon", Sign: "taurus", Longitude: 48.0, House: 4},
			{Name: "mercury", Sign: "pisces", Longitude: 340.0, House: 12},
			{Name: "venus", Sign: "gemini", Longitude: 75.0, House: 2},
			{Name: "mars", Sign: "leo", Longitude: 130.0, House: 10},
		},
		Relations: []datatypes.Relation{
			{BodyA: "sun", BodyB: "moon", Kind: datatypes.RelationSquare, Orb: 2.1},
			{BodyA: "moon", BodyB: "venus", Kind: datatypes.RelationTrine, Orb: 3.4},
		},
	}
}

func testBirth() datatypes.BirthData {
	return datatypes.BirthData{
		Date:      "1990-04-02",
		Time:      "14:30",
		Latitude:  52.52,
		Longitude: 13.405,
		Timezone:  "Europe/Berlin",
	}
}

func newTestService(t *testing.T, source SignalSource) (*Service, *store.SnapshotStore) {
	t.Helper()
	flat, err := store.OpenInMemory()
	require.NoError(t, err)
	st := store.NewSnapshotStore(flat, nil, nil)
	t.Cleanup(func() { _ = st.Close() })

	lex := lexicon.MustLoad()
	engine := narrative.NewEngine(lex, nil)
	return NewService(st, source, lex, engine, nil), st
}

// ---- Generation ----

func TestGenerateProfile_ProducesFifteenDescribedTraits(t *testing.T) {
	src := &cannedSource{signal: testSignal(), meta: datatypes.SignalMetadata{CalcVersion: "calc-2.1"}}
	svc, _ := newTestService(t, src)

	snap, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	assert.Equal(t, datatypes.SourceFoundational, snap.Source)
	assert.Empty(t, snap.PreviousID)
	assert.NotEmpty(t, snap.DerivedFrom)
	require.Len(t, snap.Traits, datatypes.LayerCount)
	for _, trait := range snap.Traits {
		assert.NotEmpty(t, trait.Description, "layer %d has no narrative", trait.LayerID)
		assert.GreaterOrEqual(t, trait.Score, 0.01)
		assert.LessOrEqual(t, trait.Score, 0.99)
	}
}

func TestGenerateProfile_PersistsSignalAndChainHead(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, st := newTestService(t, src)

	snap, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	stored, err := st.GetLatestSignal(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, snap.DerivedFrom, stored.ID)

	head, err := svc.GetProfile(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, head.ID)
}

func TestGenerateProfile_RejectsSecondFoundationalRun(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	_, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	_, err = svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	assert.ErrorIs(t, err, ErrProfileExists)
	assert.Equal(t, 1, src.calls)
}

func TestGenerateProfile_RejectsInvalidBirthData(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	birth := testBirth()
	birth.Latitude = 123.0
	_, err := svc.GenerateProfile(context.Background(), "subject-1", birth)
	assert.ErrorIs(t, err, datatypes.ErrInvalidBirthData)
	assert.Zero(t, src.calls)

	birth = testBirth()
	birth.Date = "02/04/1990"
	_, err = svc.GenerateProfile(context.Background(), "subject-1", birth)
	assert.ErrorIs(t, err, datatypes.ErrInvalidBirthData)
}

func TestGenerateProfile_SourceFailurePersistsNothing(t *testing.T) {
	src := &cannedSource{err: ErrSignalSourceUnavailable}
	svc, st := newTestService(t, src)

	_, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	assert.ErrorIs(t, err, ErrSignalSourceUnavailable)

	_, err = st.GetLatestSignal(context.Background(), "subject-1")
	assert.ErrorIs(t, err, datatypes.ErrMissingSignal)
	_, err = svc.GetProfile(context.Background(), "subject-1")
	assert.ErrorIs(t, err, datatypes.ErrNoProfile)
}

func TestGenerateProfile_RecoversFromOrphanedSignal(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, st := newTestService(t, src)

	// A prior run died after capturing the signal but before its
	// blueprint snapshot landed, leaving a signal with no chain.
	orphan := &datatypes.SignalSnapshot{
		ID:        "orphaned-signal",
		SubjectID: "subject-1",
		Signal:    *testSignal(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateSignalSnapshot(context.Background(), orphan, false))

	snap, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)
	assert.Equal(t, datatypes.SourceFoundational, snap.Source)
	assert.NotEqual(t, "orphaned-signal", snap.DerivedFrom)

	stored, err := st.GetLatestSignal(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, snap.DerivedFrom, stored.ID)

	head, err := svc.GetProfile(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, head.ID)
}

func TestGenerateProfile_DeterministicForSameSubject(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svcA, _ := newTestService(t, src)
	svcB, _ := newTestService(t, src)

	snapA, err := svcA.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)
	snapB, err := svcB.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	for i := range snapA.Traits {
		assert.Equal(t, snapA.Traits[i].Description, snapB.Traits[i].Description,
			"layer %d narratives diverged", snapA.Traits[i].LayerID)
		assert.Equal(t, snapA.Traits[i].Score, snapB.Traits[i].Score)
	}
}

// ---- Regeneration ----

func TestRegenerate_ExtendsChainWithFreshSignal(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	first, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	second, err := svc.Regenerate(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	assert.Equal(t, datatypes.SourceRegeneration, second.Source)
	assert.Equal(t, first.ID, second.PreviousID)
	assert.NotEqual(t, first.DerivedFrom, second.DerivedFrom)
	assert.Equal(t, 2, src.calls)

	history, err := svc.GetHistory(context.Background(), "subject-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
}

func TestRegenerate_RequiresExistingProfile(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	_, err := svc.Regenerate(context.Background(), "subject-1", testBirth())
	assert.ErrorIs(t, err, datatypes.ErrNoProfile)
}

// ---- Resynthesis ----

func TestResynthesize_ChangesNarrativesNotScores(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	first, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	second, err := svc.Resynthesize(context.Background(), "subject-1")
	require.NoError(t, err)

	assert.Equal(t, datatypes.SourceRefinement, second.Source)
	assert.Equal(t, first.ID, second.PreviousID)
	assert.Equal(t, first.DerivedFrom, second.DerivedFrom)
	assert.Equal(t, 1, src.calls, "resynthesis must not recompute the signal")

	changed := false
	for i := range second.Traits {
		assert.Equal(t, first.Traits[i].Score, second.Traits[i].Score)
		assert.Equal(t, first.Traits[i].Confidence, second.Traits[i].Confidence)
		if second.Traits[i].Description != first.Traits[i].Description {
			changed = true
		}
	}
	assert.True(t, changed, "refinement produced identical narratives")
}

func TestResynthesize_SuccessiveIterationsDiffer(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	_, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	first, err := svc.Resynthesize(context.Background(), "subject-1")
	require.NoError(t, err)
	second, err := svc.Resynthesize(context.Background(), "subject-1")
	require.NoError(t, err)

	changed := false
	for i := range second.Traits {
		if second.Traits[i].Description != first.Traits[i].Description {
			changed = true
			break
		}
	}
	assert.True(t, changed, "second refinement repeated the first")
}

func TestResynthesize_RequiresExistingProfile(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	_, err := svc.Resynthesize(context.Background(), "subject-1")
	assert.ErrorIs(t, err, datatypes.ErrNoProfile)
}

// ---- Feedback and questions ----

func TestSubmitFeedback_AppendsRecalibrationSnapshot(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	base, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	res, err := svc.SubmitFeedback(context.Background(), "subject-1", 1, &datatypes.Feedback{
		Kind:   datatypes.FeedbackLikert,
		Likert: &datatypes.LikertFeedback{Value: 4, Direction: datatypes.DirectionPositive},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.05, res.Delta, 1e-9)

	head, err := svc.GetProfile(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, res.NewSnapshotID, head.ID)
	assert.Equal(t, base.ID, head.PreviousID)
	assert.Equal(t, datatypes.SourceRecalibration, head.Source)
}

func TestNextQuestion_ServesCardAfterGeneration(t *testing.T) {
	src := &cannedSource{signal: testSignal()}
	svc, _ := newTestService(t, src)

	_, err := svc.GenerateProfile(context.Background(), "subject-1", testBirth())
	require.NoError(t, err)

	q, err := svc.NextQuestion(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.NotEmpty(t, q.CardID)
	assert.NotEmpty(t, q.Prompt)
	assert.GreaterOrEqual(t, q.LayerID, 1)
	assert.LessOrEqual(t, q.LayerID, datatypes.LayerCount)
}

func TestGetProfile_UnknownSubject(t *testing.T) {
	svc, _ := newTestService(t, &cannedSource{signal: testSignal()})
	_, err := svc.GetProfile(context.Background(), "nobody")
	assert.True(t, errors.Is(err, datatypes.ErrNoProfile))
}
