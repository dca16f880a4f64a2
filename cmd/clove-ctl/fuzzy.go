// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// matchSlab is scratch memory reused across fuzzyScore calls, mirroring
// fzf's own per-goroutine slab reuse. The agent picker runs on a single
// goroutine, so one shared slab is sufficient.
var matchSlab = util.MakeSlab(16*1024, 2*1024)

// fuzzyScore reports whether pattern fuzzy-matches candidate and, if so,
// a relevance score (higher is better). An empty pattern matches
// everything with a score of zero, so an unfiltered list keeps its
// original order.
func fuzzyScore(candidate, pattern string) (matched bool, score int) {
	if pattern == "" {
		return true, 0
	}
	result, _ := algo.FuzzyMatchV2(false, true, util.ToChars([]byte(candidate)), []rune(pattern), false, matchSlab)
	if result.Start < 0 {
		return false, 0
	}
	return true, int(result.Score)
}
