// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lexicon loads the fixed lookup tables the blueprint core runs on:
// the body-to-layer map, sign taxonomies, sector weights, narrative
// vocabulary pools, the forbidden-term list, sentiment word lists, and the
// calibration card pools.
//
// The tables are embedded in the binary and parsed once at process start.
// Components receive a *Lexicon by injection; nothing reads the YAML at
// request time, and nothing mutates a Lexicon after Load returns.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

//go:embed vocabulary.yaml
var vocabularyYAML []byte

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrMalformedTables indicates the embedded YAML failed to parse.
	ErrMalformedTables = errors.New("malformed lexicon tables")

	// ErrIncompleteTables indicates parsed tables failed consistency checks.
	ErrIncompleteTables = errors.New("incomplete lexicon tables")
)

// -----------------------------------------------------------------------------
// Table Types
// -----------------------------------------------------------------------------

// Layer binds one trait dimension to its primary body.
type Layer struct {
	ID    int    `yaml:"id"`
	Trait string `yaml:"trait"`
	Label string `yaml:"label"`
	Body  string `yaml:"body"`
}

// SignTaxonomy classifies a sign by energy source and mode.
type SignTaxonomy struct {
	Element  string `yaml:"element"`
	Modality string `yaml:"modality"`
}

// Card is one structured calibration prompt inside a layer's pool.
type Card struct {
	ID     string `yaml:"id"`
	Type   string `yaml:"type"`
	Prompt string `yaml:"prompt"`
}

// SentimentLists holds the fixed affirm/challenge word lists for the
// free-text heuristic.
type SentimentLists struct {
	Affirm    []string `yaml:"affirm"`
	Challenge []string `yaml:"challenge"`
}

// AnchorPool holds tension/ease phrase variants for one element-modality
// combination.
type AnchorPool struct {
	Tension []string `yaml:"tension"`
	Ease    []string `yaml:"ease"`
}

// Vocabulary holds every narrative phrase pool.
type Vocabulary struct {
	OpeningPrefixes []string                           `yaml:"opening_prefixes"`
	Openings        map[string]map[string][]string     `yaml:"openings"`
	Anchors         map[string]map[string]AnchorPool   `yaml:"anchors"`
	Closings        map[string][]string                `yaml:"closings"`
	Domains         map[int]string                     `yaml:"domains"`
}

// tables mirrors tables.yaml.
type tables struct {
	Layers         []Layer                 `yaml:"layers"`
	Houses         map[int]float64         `yaml:"houses"`
	Signs          map[string]SignTaxonomy `yaml:"signs"`
	ForbiddenTerms []string                `yaml:"forbidden_terms"`
	Sentiment      SentimentLists          `yaml:"sentiment"`
	CardOptions    map[string][]float64    `yaml:"card_options"`
	Cards          map[int][]Card          `yaml:"cards"`
}

// -----------------------------------------------------------------------------
// Lexicon
// -----------------------------------------------------------------------------

// Lexicon is the full set of immutable lookup tables.
//
// Thread Safety: read-only after Load; safe for concurrent use.
type Lexicon struct {
	Layers         []Layer
	Houses         map[int]float64
	Signs          map[string]SignTaxonomy
	ForbiddenTerms []string
	Sentiment      SentimentLists
	CardOptions    map[string][]float64
	Cards          map[int][]Card
	Vocabulary     Vocabulary

	byLayerID map[int]*Layer
}

// Load parses and validates the embedded tables.
//
// Outputs:
//
//	*Lexicon - Ready-to-inject tables.
//	error - Non-nil if the embedded YAML is malformed or inconsistent.
func Load() (*Lexicon, error) {
	var t tables
	if err := yaml.Unmarshal(tablesYAML, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTables, err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(vocabularyYAML, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTables, err)
	}

	lex := &Lexicon{
		Layers:         t.Layers,
		Houses:         t.Houses,
		Signs:          t.Signs,
		ForbiddenTerms: t.ForbiddenTerms,
		Sentiment:      t.Sentiment,
		CardOptions:    t.CardOptions,
		Cards:          t.Cards,
		Vocabulary:     v,
		byLayerID:      make(map[int]*Layer, len(t.Layers)),
	}
	for i := range lex.Layers {
		lex.byLayerID[lex.Layers[i].ID] = &lex.Layers[i]
	}

	if err := lex.validate(); err != nil {
		return nil, err
	}
	return lex, nil
}

// MustLoad is Load for process start, where malformed embedded tables are
// unrecoverable.
func MustLoad() *Lexicon {
	lex, err := Load()
	if err != nil {
		panic(err)
	}
	return lex
}

// Layer returns the layer definition for the given id, or nil when the id
// is outside the table.
func (l *Lexicon) Layer(id int) *Layer {
	return l.byLayerID[id]
}

// HouseWeight returns the occupancy weight for a sector, 0 for sectors
// outside the table (including 0, the unplaced marker).
func (l *Lexicon) HouseWeight(house int) float64 {
	return l.Houses[house]
}

// Classify returns the element and modality for a sign. Unknown signs map
// to the neutral pair ("earth", "fixed") so narrative synthesis stays total.
func (l *Lexicon) Classify(sign string) (element, modality string) {
	if tax, ok := l.Signs[sign]; ok {
		return tax.Element, tax.Modality
	}
	return "earth", "fixed"
}

// validate checks structural consistency once, at load time.
func (l *Lexicon) validate() error {
	if len(l.Layers) != 15 {
		return fmt.Errorf("%w: expected 15 layers, got %d", ErrIncompleteTables, len(l.Layers))
	}
	for i, layer := range l.Layers {
		if layer.ID != i+1 {
			return fmt.Errorf("%w: layer %d has id %d", ErrIncompleteTables, i, layer.ID)
		}
		if layer.Trait == "" || layer.Label == "" || layer.Body == "" {
			return fmt.Errorf("%w: layer %d missing fields", ErrIncompleteTables, layer.ID)
		}
	}
	if len(l.Signs) != 12 {
		return fmt.Errorf("%w: expected 12 signs, got %d", ErrIncompleteTables, len(l.Signs))
	}
	for sign, tax := range l.Signs {
		if tax.Element == "" || tax.Modality == "" {
			return fmt.Errorf("%w: sign %q missing taxonomy", ErrIncompleteTables, sign)
		}
	}
	for house, weight := range l.Houses {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("%w: house %d weight %v outside [0,1]", ErrIncompleteTables, house, weight)
		}
	}
	if len(l.Vocabulary.OpeningPrefixes) < 15 {
		return fmt.Errorf("%w: need at least 15 opening prefixes, got %d",
			ErrIncompleteTables, len(l.Vocabulary.OpeningPrefixes))
	}
	for _, tax := range l.Signs {
		if len(l.Vocabulary.Openings[tax.Element][tax.Modality]) == 0 {
			return fmt.Errorf("%w: no openings for %s/%s", ErrIncompleteTables, tax.Element, tax.Modality)
		}
		pool := l.Vocabulary.Anchors[tax.Element][tax.Modality]
		if len(pool.Tension) == 0 || len(pool.Ease) == 0 {
			return fmt.Errorf("%w: no anchors for %s/%s", ErrIncompleteTables, tax.Element, tax.Modality)
		}
		if len(l.Vocabulary.Closings[tax.Element]) == 0 {
			return fmt.Errorf("%w: no closings for %s", ErrIncompleteTables, tax.Element)
		}
	}
	for kind, options := range l.CardOptions {
		if len(options) != 2 && len(options) != 5 {
			return fmt.Errorf("%w: card type %q has %d options", ErrIncompleteTables, kind, len(options))
		}
	}
	for layerID, cards := range l.Cards {
		if l.byLayerID[layerID] == nil {
			return fmt.Errorf("%w: cards reference unknown layer %d", ErrIncompleteTables, layerID)
		}
		for _, card := range cards {
			if _, ok := l.CardOptions[card.Type]; !ok {
				return fmt.Errorf("%w: card %q has unknown type %q", ErrIncompleteTables, card.ID, card.Type)
			}
		}
	}
	return nil
}
