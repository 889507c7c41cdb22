// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package narrative synthesizes the per-layer descriptive text of a
// blueprint.
//
// The rule-based path is fully deterministic: a seed derived from the
// subject, layer, engine version, and refinement iteration drives a local
// PRNG that shuffles fixed vocabulary pools. A caller-supplied dedup buffer
// guarantees no two narratives in one profile-generation run share a
// phrasing fragment or an opening template.
//
// An optional external generator can be attempted first; every failure of
// that path falls back to rule-based synthesis with no difference in the
// returned shape. All accepted text, whichever path produced it, passes
// through the forbidden-term sanitizer.
package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
	"github.com/originseedlabs/originseed/services/blueprint/observability"
)

// -----------------------------------------------------------------------------
// Result
// -----------------------------------------------------------------------------

// Narrative is one layer's synthesized text plus its categorical tag.
type Narrative struct {
	// Text is the sanitized three-paragraph narrative.
	Text string

	// ProfileTag summarizes the classification the text was composed
	// from, "element-modality-skew" (e.g. "fire-cardinal-ease").
	ProfileTag string
}

// classification is the coarse categorical view of a primary body.
type classification struct {
	element  string
	modality string
	house    int
	tension  bool
}

func (c classification) skew() string {
	if c.tension {
		return "tension"
	}
	return "ease"
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine composes layer narratives.
//
// Thread Safety: safe for concurrent use; per-run mutable state lives in
// the caller's DedupBuffer.
type Engine struct {
	lex       *lexicon.Lexicon
	sanitizer *Sanitizer
	enhancer  *Enhancer
}

// NewEngine creates an Engine over the given tables. enhancer may be nil,
// which disables the external path entirely.
func NewEngine(lex *lexicon.Lexicon, enhancer *Enhancer) *Engine {
	return &Engine{
		lex:       lex,
		sanitizer: NewSanitizer(lex.ForbiddenTerms),
		enhancer:  enhancer,
	}
}

// Sanitizer exposes the engine's sanitizer for callers that accept text
// from elsewhere.
func (e *Engine) Sanitizer() *Sanitizer {
	return e.sanitizer
}

// Synthesize produces the narrative for one layer.
//
// Inputs:
//
//	ctx - Bounds the optional external call only; the rule-based path
//	never blocks.
//	subjectID - Owner of the profile being generated.
//	layerID - Layer to narrate, 1..15.
//	signal - The captured positional signal.
//	iteration - 0 for initial generation, >0 for re-synthesis.
//	buf - Dedup state shared across the run. Must not be nil.
//
// Outputs:
//
//	Narrative - Always fully formed when error is nil.
//	error - Non-nil only for a layer id outside 1..15; synthesis itself
//	never fails.
func (e *Engine) Synthesize(ctx context.Context, subjectID string, layerID int,
	signal *datatypes.PositionalSignal, iteration int, buf *DedupBuffer) (Narrative, error) {

	layer := e.lex.Layer(layerID)
	if layer == nil {
		return Narrative{}, datatypes.ErrUnknownLayer
	}

	class := e.classify(signal, layer)
	tag := fmt.Sprintf("%s-%s-%s", class.element, class.modality, class.skew())

	if e.enhancer != nil {
		prompt := e.buildPrompt(layer, class)
		if text, ok := e.enhancer.Enhance(ctx, subjectID, layerID, iteration, prompt); ok {
			observability.Metrics().EnhancementsTotal.WithLabelValues("enhanced").Inc()
			return Narrative{Text: e.sanitizer.Sanitize(text), ProfileTag: tag}, nil
		}
		observability.Metrics().EnhancementsTotal.WithLabelValues("fallback").Inc()
	}

	text := e.compose(subjectID, layerID, layer, class, iteration, buf)
	return Narrative{Text: e.sanitizer.Sanitize(text), ProfileTag: tag}, nil
}

// classify reduces the primary body to its categorical attributes. A
// missing body classifies as the neutral pair with no sector, so synthesis
// stays total.
func (e *Engine) classify(signal *datatypes.PositionalSignal, layer *lexicon.Layer) classification {
	var class classification
	body := signal.FindBody(layer.Body)
	if body != nil {
		class.element, class.modality = e.lex.Classify(body.Sign)
		class.house = body.House
	} else {
		class.element, class.modality = e.lex.Classify("")
	}

	friction, ease := 0, 0
	for _, r := range signal.Relations {
		if r.BodyA != layer.Body && r.BodyB != layer.Body {
			continue
		}
		switch r.Kind {
		case datatypes.RelationSquare, datatypes.RelationOpposition, datatypes.RelationQuincunx:
			friction++
		case datatypes.RelationTrine, datatypes.RelationSextile, datatypes.RelationConjunction:
			ease++
		}
	}
	class.tension = friction > ease
	return class
}

// compose is the deterministic rule-based path: three paragraphs, each
// drawn from the pool for the layer's classification.
func (e *Engine) compose(subjectID string, layerID int, layer *lexicon.Layer,
	class classification, iteration int, buf *DedupBuffer) string {

	r := newRNG(Seed(subjectID, layerID, iteration))
	vocab := &e.lex.Vocabulary

	// Opening stance: template prefix (deduplicated independently of body
	// text) plus a stance phrase for the element-modality pair.
	prefix := pickPrefix(r, vocab.OpeningPrefixes, buf)
	opening := fmt.Sprintf(prefix, layer.Label) + " " +
		pickPhrase(r, vocab.Openings[class.element][class.modality], buf)

	// Tension/ease anchor plus the sector's domain focus.
	pool := vocab.Anchors[class.element][class.modality]
	candidates := pool.Ease
	if class.tension {
		candidates = pool.Tension
	}
	anchor := pickPhrase(r, candidates, buf)
	if domain, ok := vocab.Domains[class.house]; ok {
		anchor += " " + domain
	}

	closing := pickPhrase(r, vocab.Closings[class.element], buf)

	return strings.Join([]string{opening, anchor, closing}, "\n\n")
}

// buildPrompt renders the categorical inputs as a prompt for the external
// path. The prompt carries only classifications, never raw positions.
func (e *Engine) buildPrompt(layer *lexicon.Layer, class classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a three-paragraph reflection on someone's %s.\n", layer.Label)
	fmt.Fprintf(&b, "Energy source: %s. Mode: %s.\n", class.element, class.modality)
	if class.tension {
		b.WriteString("The pattern currently carries friction; acknowledge it honestly.\n")
	} else {
		b.WriteString("The pattern currently flows easily; name that without flattery.\n")
	}
	if domain, ok := e.lex.Vocabulary.Domains[class.house]; ok {
		fmt.Fprintf(&b, "Life area: %s\n", domain)
	}
	b.WriteString("Open with a stance, anchor the middle in the friction or flow, close with the social impact.")
	return b.String()
}

// pickPhrase shuffles the pool deterministically and returns the first
// candidate whose hash the run has not consumed. If every candidate
// collides it falls back to the first shuffled one and still records it.
func pickPhrase(r *rng, pool []string, buf *DedupBuffer) string {
	if len(pool) == 0 {
		return ""
	}
	order := r.perm(len(pool))
	for _, idx := range order {
		h := phraseHash(pool[idx])
		if !buf.seenPhrase(h) {
			buf.recordPhrase(h)
			return pool[idx]
		}
	}
	fallback := pool[order[0]]
	buf.recordPhrase(phraseHash(fallback))
	return fallback
}

// pickPrefix is pickPhrase against the independent prefix set.
func pickPrefix(r *rng, pool []string, buf *DedupBuffer) string {
	if len(pool) == 0 {
		return "%s."
	}
	order := r.perm(len(pool))
	for _, idx := range order {
		h := phraseHash(pool[idx])
		if !buf.seenPrefix(h) {
			buf.recordPrefix(h)
			return pool[idx]
		}
	}
	fallback := pool[order[0]]
	buf.recordPrefix(phraseHash(fallback))
	return fallback
}
