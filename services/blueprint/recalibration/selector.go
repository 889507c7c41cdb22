// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recalibration

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
)

// CalibrationStateStore persists per-subject card-selection state.
// Satisfied by store.SnapshotStore.
type CalibrationStateStore interface {
	GetLatest(ctx context.Context, subjectID string) (*datatypes.BlueprintSnapshot, error)
	GetCalibrationState(ctx context.Context, subjectID string) ([]byte, error)
	PutCalibrationState(ctx context.Context, subjectID string, state []byte) error
}

// Question is one calibration prompt served to a subject.
type Question struct {
	LayerID  int       `json:"layer_id"`
	TraitKey string    `json:"trait_key"`
	CardID   string    `json:"card_id"`
	CardType string    `json:"card_type"`
	Prompt   string    `json:"prompt"`
	Options  []float64 `json:"-"`

	// OptionCount tells the client how many answer positions the card
	// carries without exposing the delta table.
	OptionCount int `json:"option_count"`
}

// selectionState is the persisted asked-card record. Keyed by layer id;
// a card id listed here is not shown again until the layer's pool cycles.
type selectionState struct {
	Asked map[int][]string `json:"asked"`
}

// Selector picks the next calibration card for a subject.
//
// Selection policy: the layer with the lowest current confidence goes
// first, because that is where one answer buys the most. Within the
// layer, agreement cards are preferred while confidence is low and
// resonance cards once the layer has settled, and no card repeats for a
// subject until the layer's whole pool has been asked.
//
// Thread Safety: safe for concurrent use across subjects. Concurrent
// calls for the same subject may serve the same card; the asked-state
// write is last-wins and the cost is one repeated question.
type Selector struct {
	lex   *lexicon.Lexicon
	store CalibrationStateStore
}

// NewSelector builds a selector over the card pools.
func NewSelector(lex *lexicon.Lexicon, store CalibrationStateStore) *Selector {
	return &Selector{lex: lex, store: store}
}

// NextQuestion picks the next card for the subject.
//
// Outputs:
//
//	*Question - Always non-nil when error is nil; the pools recycle, so
//	a subject never runs out of questions.
//	error - datatypes.ErrNoProfile when the subject has no chain yet, or
//	a storage error.
func (s *Selector) NextQuestion(ctx context.Context, subjectID string) (*Question, error) {
	latest, err := s.store.GetLatest(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	state, err := s.loadState(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	for _, layerID := range s.layersByConfidence(latest) {
		cards := s.lex.Cards[layerID]
		if len(cards) == 0 {
			continue
		}
		confidence := latest.Trait(layerID).Confidence

		card := pickCard(cards, state.Asked[layerID], confidence)
		if card == nil {
			// Pool exhausted for this layer; recycle it.
			state.Asked[layerID] = nil
			card = pickCard(cards, nil, confidence)
		}
		if card == nil {
			continue
		}

		state.Asked[layerID] = append(state.Asked[layerID], card.ID)
		if err := s.saveState(ctx, subjectID, state); err != nil {
			return nil, err
		}

		layer := s.lex.Layer(layerID)
		options := s.lex.CardOptions[card.Type]
		return &Question{
			LayerID:     layerID,
			TraitKey:    layer.Trait,
			CardID:      card.ID,
			CardType:    card.Type,
			Prompt:      card.Prompt,
			Options:     options,
			OptionCount: len(options),
		}, nil
	}

	return nil, fmt.Errorf("no calibration cards configured")
}

// FindCard resolves a card id back to its definition, for applying the
// answer.
func (s *Selector) FindCard(cardID string) (*lexicon.Card, int) {
	for layerID, cards := range s.lex.Cards {
		for i := range cards {
			if cards[i].ID == cardID {
				return &cards[i], layerID
			}
		}
	}
	return nil, 0
}

// layersByConfidence orders layer ids ascending by current confidence,
// ties broken by layer id for stable behavior.
func (s *Selector) layersByConfidence(snap *datatypes.BlueprintSnapshot) []int {
	ids := make([]int, 0, len(snap.Traits))
	for _, tr := range snap.Traits {
		ids = append(ids, tr.LayerID)
	}
	sort.SliceStable(ids, func(a, b int) bool {
		ta, tb := snap.Trait(ids[a]), snap.Trait(ids[b])
		if ta.Confidence != tb.Confidence {
			return ta.Confidence < tb.Confidence
		}
		return ta.LayerID < tb.LayerID
	})
	return ids
}

// settledConfidence is the boundary where card-type preference flips:
// below it agreement cards lead, at or above it resonance cards lead.
const settledConfidence = 0.85

// pickCard returns the first unasked card. Agreement cards go first while
// the layer is still uncertain; a settled layer gets resonance cards first.
func pickCard(cards []lexicon.Card, asked []string, confidence float64) *lexicon.Card {
	askedSet := make(map[string]struct{}, len(asked))
	for _, id := range asked {
		askedSet[id] = struct{}{}
	}

	order := []string{"agreement", "resonance"}
	if confidence >= settledConfidence {
		order = []string{"resonance", "agreement"}
	}
	for _, preferType := range order {
		for i := range cards {
			if cards[i].Type != preferType {
				continue
			}
			if _, seen := askedSet[cards[i].ID]; !seen {
				return &cards[i]
			}
		}
	}
	return nil
}

func (s *Selector) loadState(ctx context.Context, subjectID string) (*selectionState, error) {
	raw, err := s.store.GetCalibrationState(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	state := &selectionState{Asked: make(map[int][]string)}
	if len(raw) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode calibration state for subject %s: %w", subjectID, err)
	}
	if state.Asked == nil {
		state.Asked = make(map[int][]string)
	}
	return state, nil
}

func (s *Selector) saveState(ctx context.Context, subjectID string, state *selectionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode calibration state: %w", err)
	}
	return s.store.PutCalibrationState(ctx, subjectID, raw)
}
