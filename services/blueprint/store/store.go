// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/observability"
)

// ErrSignalExists is returned when a second signal capture is written for
// a subject outside the explicit regeneration path.
var ErrSignalExists = errors.New("signal snapshot already exists for subject")

// latestPointer is the per-subject record naming the current chain head.
type latestPointer struct {
	SnapshotID string `json:"snapshot_id"`
}

// SnapshotStore is the persistence facade the rest of the blueprint core
// talks to. It owns the dual-backend write path:
//
//  1. Snapshot and latest pointer land in the flat store in one
//     transaction. If this fails, the operation fails.
//  2. A best-effort copy goes to the graph backend. If that fails, the
//     failure is logged and counted, never surfaced.
//
// Reads are always served from the flat store. The graph is an analytics
// view, not a replica that reads fall back to.
//
// Thread Safety: safe for concurrent use. A store-wide write mutex
// serializes chain appends so two concurrent feedback events cannot both
// extend the same head.
type SnapshotStore struct {
	flat   *FlatStore
	graph  *GraphBackend
	logger *slog.Logger

	writeMu sync.Mutex
}

// NewSnapshotStore builds the facade. graph may be nil, which disables the
// best-effort copy entirely (single-backend deployments, tests).
func NewSnapshotStore(flat *FlatStore, graph *GraphBackend, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{
		flat:   flat,
		graph:  graph,
		logger: logger.With(slog.String("component", "snapshot_store")),
	}
}

// Close releases both backends.
func (s *SnapshotStore) Close() error {
	var graphErr error
	if s.graph != nil {
		graphErr = s.graph.Close()
	}
	if err := s.flat.Close(); err != nil {
		return err
	}
	return graphErr
}

// -----------------------------------------------------------------------------
// Signal snapshots
// -----------------------------------------------------------------------------

// CreateSignalSnapshot persists a write-once signal capture.
//
// Inputs:
//
//	snap - Validated capture. snap.SubjectID keys the record; a subject
//	has at most one live capture, replaced only via allowReplace on the
//	regeneration path.
func (s *SnapshotStore) CreateSignalSnapshot(ctx context.Context, snap *datatypes.SignalSnapshot, allowReplace bool) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal signal snapshot: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if allowReplace {
		err = s.flat.Put(ctx, CollectionSignalSnapshots, snap.SubjectID, payload)
	} else {
		err = s.flat.PutOnce(ctx, CollectionSignalSnapshots, snap.SubjectID, payload)
		if errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("%w: subject %s", ErrSignalExists, snap.SubjectID)
		}
	}
	if err != nil {
		observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("flat", "error").Inc()
		return fmt.Errorf("persist signal snapshot: %w", err)
	}
	observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("flat", "success").Inc()

	s.copySignalToGraph(ctx, snap)
	return nil
}

// GetLatestSignal reads the subject's signal capture.
func (s *SnapshotStore) GetLatestSignal(ctx context.Context, subjectID string) (*datatypes.SignalSnapshot, error) {
	payload, err := s.flat.Get(ctx, CollectionSignalSnapshots, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: subject %s", datatypes.ErrMissingSignal, subjectID)
		}
		return nil, err
	}

	var snap datatypes.SignalSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode signal snapshot for subject %s: %w", subjectID, err)
	}
	return &snap, nil
}

// -----------------------------------------------------------------------------
// Blueprint snapshots
// -----------------------------------------------------------------------------

// AppendSnapshot persists a blueprint snapshot and repoints the subject's
// latest pointer, atomically with respect to flat-store readers. The
// snapshot must already carry the correct PreviousID; the store verifies
// it matches the current head so a stale writer cannot fork the chain.
func (s *SnapshotStore) AppendSnapshot(ctx context.Context, snap *datatypes.BlueprintSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal blueprint snapshot: %w", err)
	}
	pointer, err := json.Marshal(latestPointer{SnapshotID: snap.ID})
	if err != nil {
		return fmt.Errorf("marshal latest pointer: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	head, err := s.latestID(ctx, snap.SubjectID)
	if err != nil && !errors.Is(err, datatypes.ErrNoProfile) {
		return err
	}
	if head != snap.PreviousID {
		return fmt.Errorf("snapshot %s links previous %q but chain head is %q",
			snap.ID, snap.PreviousID, head)
	}

	err = s.flat.PutMany(ctx, []Entry{
		{Collection: CollectionBlueprintSnapshots, Key: snap.ID, Value: payload},
		{Collection: CollectionLatestPointers, Key: snap.SubjectID, Value: pointer},
	})
	if err != nil {
		observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("flat", "error").Inc()
		return fmt.Errorf("persist blueprint snapshot: %w", err)
	}
	observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("flat", "success").Inc()

	s.copyBlueprintToGraph(ctx, snap)
	return nil
}

// GetSnapshot reads one snapshot by id.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, snapshotID string) (*datatypes.BlueprintSnapshot, error) {
	payload, err := s.flat.Get(ctx, CollectionBlueprintSnapshots, snapshotID)
	if err != nil {
		return nil, err
	}

	var snap datatypes.BlueprintSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode blueprint snapshot %s: %w", snapshotID, err)
	}
	return &snap, nil
}

// GetLatest reads the subject's current chain head.
func (s *SnapshotStore) GetLatest(ctx context.Context, subjectID string) (*datatypes.BlueprintSnapshot, error) {
	head, err := s.latestID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return s.GetSnapshot(ctx, head)
}

// GetHistory walks the chain backward from the head, newest first, up to
// maxDepth snapshots. maxDepth <= 0 means the full chain. A broken link
// mid-walk returns what was collected along with the error.
func (s *SnapshotStore) GetHistory(ctx context.Context, subjectID string, maxDepth int) ([]*datatypes.BlueprintSnapshot, error) {
	head, err := s.latestID(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var chain []*datatypes.BlueprintSnapshot
	for id := head; id != ""; {
		if maxDepth > 0 && len(chain) >= maxDepth {
			break
		}
		snap, err := s.GetSnapshot(ctx, id)
		if err != nil {
			return chain, fmt.Errorf("chain for subject %s broken at %s: %w", subjectID, id, err)
		}
		chain = append(chain, snap)
		id = snap.PreviousID
	}

	observability.Metrics().SnapshotChainDepth.Observe(float64(len(chain)))
	return chain, nil
}

// latestID resolves the subject's latest pointer.
func (s *SnapshotStore) latestID(ctx context.Context, subjectID string) (string, error) {
	payload, err := s.flat.Get(ctx, CollectionLatestPointers, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: subject %s", datatypes.ErrNoProfile, subjectID)
		}
		return "", err
	}

	var p latestPointer
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("decode latest pointer for subject %s: %w", subjectID, err)
	}
	return p.SnapshotID, nil
}

// -----------------------------------------------------------------------------
// Calibration state
// -----------------------------------------------------------------------------

// GetCalibrationState reads the subject's raw card-selection state. An
// absent record returns (nil, nil); the selector treats that as a fresh
// subject.
func (s *SnapshotStore) GetCalibrationState(ctx context.Context, subjectID string) ([]byte, error) {
	payload, err := s.flat.Get(ctx, CollectionCalibrationState, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

// PutCalibrationState replaces the subject's card-selection state.
func (s *SnapshotStore) PutCalibrationState(ctx context.Context, subjectID string, state []byte) error {
	return s.flat.Put(ctx, CollectionCalibrationState, subjectID, state)
}

// -----------------------------------------------------------------------------
// Graph copies and analytics
// -----------------------------------------------------------------------------

func (s *SnapshotStore) copySignalToGraph(ctx context.Context, snap *datatypes.SignalSnapshot) {
	if s.graph == nil || !s.graph.Available() {
		return
	}
	if err := s.graph.WriteSignalSnapshot(ctx, snap); err != nil {
		observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("graph", "error").Inc()
		s.logger.Warn("graph copy of signal snapshot failed",
			slog.String("subject_id", snap.SubjectID),
			slog.String("error", err.Error()))
		return
	}
	observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("graph", "success").Inc()
}

func (s *SnapshotStore) copyBlueprintToGraph(ctx context.Context, snap *datatypes.BlueprintSnapshot) {
	if s.graph == nil || !s.graph.Available() {
		return
	}
	if err := s.graph.WriteBlueprintSnapshot(ctx, snap); err != nil {
		observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("graph", "error").Inc()
		s.logger.Warn("graph copy of blueprint snapshot failed",
			slog.String("subject_id", snap.SubjectID),
			slog.String("snapshot_id", snap.ID),
			slog.String("error", err.Error()))
		return
	}
	observability.Metrics().SnapshotsWrittenTotal.WithLabelValues("graph", "success").Inc()
}

// GraphAvailable reports the graph backend's gate state for health
// surfaces.
func (s *SnapshotStore) GraphAvailable() bool {
	return s.graph != nil && s.graph.Available()
}

// ChainSummary proxies the graph-side analytics view. Returns
// ErrGraphUnavailable when the backend is degraded or absent.
func (s *SnapshotStore) ChainSummary(ctx context.Context, subjectID string) (*SubjectChainSummary, error) {
	if s.graph == nil {
		return nil, ErrGraphUnavailable
	}
	return s.graph.ChainSummary(ctx, subjectID)
}
