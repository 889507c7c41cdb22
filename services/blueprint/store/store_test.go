// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	flat, err := OpenInMemory()
	require.NoError(t, err)
	s := NewSnapshotStore(flat, nil, nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTraits() []datatypes.TraitScore {
	traits := make([]datatypes.TraitScore, datatypes.LayerCount)
	for i := range traits {
		traits[i] = datatypes.TraitScore{
			LayerID:     i + 1,
			TraitKey:    fmt.Sprintf("trait_%d", i+1),
			Score:       0.5,
			Confidence:  0.8,
			Description: "a narrative",
		}
	}
	return traits
}

func testBlueprintSnapshot(id, subjectID, previousID string, source datatypes.SnapshotSource) *datatypes.BlueprintSnapshot {
	return &datatypes.BlueprintSnapshot{
		ID:         id,
		SubjectID:  subjectID,
		Timestamp:  time.Now().UTC(),
		Source:     source,
		Traits:     testTraits(),
		PreviousID: previousID,
	}
}

func testSignalSnapshot(id, subjectID string) *datatypes.SignalSnapshot {
	return &datatypes.SignalSnapshot{
		ID:        id,
		SubjectID: subjectID,
		Signal: datatypes.PositionalSignal{
			Bodies: []datatypes.Body{{Name: "sun", Sign: "aries", House: 1}},
		},
		Metadata:  datatypes.SignalMetadata{CalcVersion: "calc-2.1"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestSnapshotStore_SignalWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSignalSnapshot(ctx, testSignalSnapshot("sig-1", "subj"), false))

	err := s.CreateSignalSnapshot(ctx, testSignalSnapshot("sig-2", "subj"), false)
	assert.ErrorIs(t, err, ErrSignalExists)

	// Regeneration replaces explicitly.
	require.NoError(t, s.CreateSignalSnapshot(ctx, testSignalSnapshot("sig-2", "subj"), true))

	got, err := s.GetLatestSignal(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, "sig-2", got.ID)
}

func TestSnapshotStore_GetLatestSignal_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetLatestSignal(context.Background(), "nobody")
	assert.ErrorIs(t, err, datatypes.ErrMissingSignal)
}

func TestSnapshotStore_AppendAndGetLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testBlueprintSnapshot("snap-1", "subj", "", datatypes.SourceFoundational)
	require.NoError(t, s.AppendSnapshot(ctx, first))

	latest, err := s.GetLatest(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", latest.ID)

	second := testBlueprintSnapshot("snap-2", "subj", "snap-1", datatypes.SourceRecalibration)
	require.NoError(t, s.AppendSnapshot(ctx, second))

	latest, err = s.GetLatest(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, "snap-2", latest.ID)
	assert.Equal(t, "snap-1", latest.PreviousID)

	// The first snapshot is still readable; append never mutates.
	old, err := s.GetSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	assert.Empty(t, old.PreviousID)
}

func TestSnapshotStore_AppendRejectsStaleHead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-1", "subj", "", datatypes.SourceFoundational)))
	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-2", "subj", "snap-1", datatypes.SourceRecalibration)))

	// A writer that read snap-1 as head lost the race; it must not fork.
	err := s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-3", "subj", "snap-1", datatypes.SourceRecalibration))
	assert.Error(t, err)

	latest, err := s.GetLatest(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, "snap-2", latest.ID)
}

func TestSnapshotStore_AppendValidates(t *testing.T) {
	s := newTestStore(t)

	bad := testBlueprintSnapshot("snap-1", "subj", "", datatypes.SourceFoundational)
	bad.Traits = bad.Traits[:10]

	err := s.AppendSnapshot(context.Background(), bad)
	assert.ErrorIs(t, err, datatypes.ErrInvalidSnapshot)
}

func TestSnapshotStore_GetHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-1", "subj", "", datatypes.SourceFoundational)))
	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-2", "subj", "snap-1", datatypes.SourceRecalibration)))
	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-3", "subj", "snap-2", datatypes.SourceRefinement)))

	chain, err := s.GetHistory(ctx, "subj", 0)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "snap-3", chain[0].ID)
	assert.Equal(t, "snap-2", chain[1].ID)
	assert.Equal(t, "snap-1", chain[2].ID)

	limited, err := s.GetHistory(ctx, "subj", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "snap-3", limited[0].ID)
}

func TestSnapshotStore_GetLatest_NoProfile(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetLatest(context.Background(), "nobody")
	assert.ErrorIs(t, err, datatypes.ErrNoProfile)

	_, err = s.GetHistory(context.Background(), "nobody", 0)
	assert.ErrorIs(t, err, datatypes.ErrNoProfile)
}

func TestSnapshotStore_CalibrationState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state, err := s.GetCalibrationState(ctx, "subj")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, s.PutCalibrationState(ctx, "subj", []byte(`{"asked":["card-1"]}`)))

	state, err = s.GetCalibrationState(ctx, "subj")
	require.NoError(t, err)
	assert.JSONEq(t, `{"asked":["card-1"]}`, string(state))
}

func TestSnapshotStore_DegradedGraphNeverFailsWrites(t *testing.T) {
	flat, err := OpenInMemory()
	require.NoError(t, err)

	// Nothing listens on this port, so the backend starts degraded and the
	// long probe intervals keep it there for the whole test.
	graph, err := NewGraphBackend(GraphConfig{
		URL:                   "http://127.0.0.1:1",
		HealthCheckTimeout:    time.Second,
		HealthCheckInterval:   time.Hour,
		DegradedCheckInterval: time.Hour,
	})
	require.NoError(t, err)
	require.False(t, graph.Available())

	s := NewSnapshotStore(flat, graph, nil)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.CreateSignalSnapshot(ctx, testSignalSnapshot("sig-1", "subj"), false))
	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-1", "subj", "", datatypes.SourceFoundational)))
	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-2", "subj", "snap-1", datatypes.SourceRecalibration)))

	latest, err := s.GetLatest(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, "snap-2", latest.ID)

	assert.False(t, s.GraphAvailable())
	_, err = s.ChainSummary(ctx, "subj")
	assert.ErrorIs(t, err, ErrGraphUnavailable)
}

func TestSnapshotStore_SubjectsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-a", "alice", "", datatypes.SourceFoundational)))
	require.NoError(t, s.AppendSnapshot(ctx, testBlueprintSnapshot("snap-b", "bob", "", datatypes.SourceFoundational)))

	latest, err := s.GetLatest(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "snap-a", latest.ID)

	latest, err = s.GetLatest(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "snap-b", latest.ID)
}
