// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package narrative

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeed_Stable(t *testing.T) {
	assert.Equal(t, Seed("subject-1", 3, 0), Seed("subject-1", 3, 0))
	assert.Equal(t, Seed("subject-1", 3, 2), Seed("subject-1", 3, 2))
}

func TestSeed_Distinguishes(t *testing.T) {
	base := Seed("subject-1", 3, 0)

	assert.NotEqual(t, base, Seed("subject-2", 3, 0), "subject must affect seed")
	assert.NotEqual(t, base, Seed("subject-1", 4, 0), "layer must affect seed")
	assert.NotEqual(t, base, Seed("subject-1", 3, 1), "iteration must affect seed")
}

func TestRNG_PermDeterministic(t *testing.T) {
	a := newRNG(12345)
	b := newRNG(12345)

	assert.Equal(t, a.perm(10), b.perm(10))
}

func TestRNG_PermCoversRange(t *testing.T) {
	r := newRNG(99)
	p := r.perm(8)

	seen := make(map[int]bool)
	for _, v := range p {
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 8)
		seen[v] = true
	}
	assert.Len(t, seen, 8)
}

func TestRNG_ZeroSeedDoesNotStick(t *testing.T) {
	r := newRNG(0)
	assert.NotEqual(t, uint32(0), r.next())
}

func TestDedupBuffer(t *testing.T) {
	buf := NewDedupBuffer()
	h := phraseHash("a steady presence")

	assert.False(t, buf.seenPhrase(h))
	buf.recordPhrase(h)
	assert.True(t, buf.seenPhrase(h))

	// Prefix tracking is independent of phrase tracking.
	assert.False(t, buf.seenPrefix(h))
	buf.recordPrefix(h)
	assert.True(t, buf.seenPrefix(h))

	assert.Equal(t, 1, buf.PhraseCount())
	assert.Equal(t, 1, buf.PrefixCount())
}
