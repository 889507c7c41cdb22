// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package narrative

// DedupBuffer tracks phrase fingerprints across one full profile-generation
// run so no two of a profile's fifteen narratives reuse a phrasing fragment.
// Opening-prefix templates are tracked separately from body phrases: a
// prefix colliding with body text is fine, two narratives sharing an
// opening template is not.
//
// A buffer is scoped to a single run and never persisted.
//
// Thread Safety: not safe for concurrent use; a run synthesizes its layers
// sequentially against one buffer.
type DedupBuffer struct {
	phrases  map[uint64]struct{}
	prefixes map[uint64]struct{}
}

// NewDedupBuffer creates an empty buffer for one generation run.
func NewDedupBuffer() *DedupBuffer {
	return &DedupBuffer{
		phrases:  make(map[uint64]struct{}),
		prefixes: make(map[uint64]struct{}),
	}
}

func (b *DedupBuffer) seenPhrase(h uint64) bool {
	_, ok := b.phrases[h]
	return ok
}

func (b *DedupBuffer) recordPhrase(h uint64) {
	b.phrases[h] = struct{}{}
}

func (b *DedupBuffer) seenPrefix(h uint64) bool {
	_, ok := b.prefixes[h]
	return ok
}

func (b *DedupBuffer) recordPrefix(h uint64) {
	b.prefixes[h] = struct{}{}
}

// PhraseCount reports how many distinct body phrases the run has consumed.
func (b *DedupBuffer) PhraseCount() int {
	return len(b.phrases)
}

// PrefixCount reports how many distinct opening templates the run has
// consumed.
func (b *DedupBuffer) PrefixCount() int {
	return len(b.prefixes)
}
