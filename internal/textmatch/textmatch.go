// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package textmatch implements multi-pattern substring matching on top of
// an Aho-Corasick automaton.
//
// The build aggregator uses it to classify equipment: one pass over a
// normalized weapon identifier decides whether any configured healer staff
// name occurs in it. Checking each pattern separately costs
// O(len(text) * patterns); the automaton answers in O(len(text) + matches)
// no matter how many patterns are registered.
//
// Example:
//
//	m := textmatch.NewMatcher([]string{"HOLYSTAFF", "NATURESTAFF"})
//	m.Contains("MAIN_HOLYSTAFF") // true
//	m.Contains("MAIN_DAGGER")    // false
package textmatch

import (
	"strings"
	"sync"
)

// Automaton is a mutable Aho-Corasick matcher. Patterns are folded to upper
// case on insert and text is folded the same way on search, so matching is
// case-insensitive. Call AddPattern for each pattern, then Build, then
// Search or Contains. Adding a pattern after Build marks the automaton
// dirty; searches return nothing until Build runs again.
type Automaton struct {
	mu       sync.RWMutex
	root     *node
	patterns []Pattern
	built    bool
}

// node is one state of the automaton.
type node struct {
	children map[rune]*node
	fail     *node // longest proper suffix that is also a trie prefix
	output   []int // indices of patterns ending at this state
	depth    int
}

// Pattern is a registered search pattern with optional caller data.
type Pattern struct {
	Text string
	Data any
}

// Match reports one occurrence of a pattern in the searched text.
// Position is a byte offset; patterns are expected to be ASCII identifiers.
type Match struct {
	Pattern  string
	Data     any
	Position int
}

// New returns an empty automaton.
func New() *Automaton {
	return &Automaton{root: newNode(0)}
}

func newNode(depth int) *node {
	return &node{
		children: make(map[rune]*node),
		depth:    depth,
	}
}

// AddPattern registers a pattern. Empty patterns are ignored.
func (a *Automaton) AddPattern(pattern string, data any) {
	if pattern == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.built = false
	a.patterns = append(a.patterns, Pattern{Text: pattern, Data: data})
}

// AddPatterns registers several patterns sharing the same data value.
func (a *Automaton) AddPatterns(patterns []string, data any) {
	for _, p := range patterns {
		a.AddPattern(p, data)
	}
}

// Build constructs the trie and failure links. It is idempotent: calling it
// on an already-built automaton is a no-op.
func (a *Automaton) Build() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.built {
		return
	}

	a.root = newNode(0)
	for i, p := range a.patterns {
		a.insert(i, p.Text)
	}
	a.linkFailures()
	a.built = true
}

func (a *Automaton) insert(index int, pattern string) {
	n := a.root
	for _, ch := range strings.ToUpper(pattern) {
		child := n.children[ch]
		if child == nil {
			child = newNode(n.depth + 1)
			n.children[ch] = child
		}
		n = child
	}
	n.output = append(n.output, index)
}

// linkFailures wires failure links breadth-first and merges output sets so
// every state reports all patterns ending there, including suffixes.
func (a *Automaton) linkFailures() {
	queue := make([]*node, 0, len(a.root.children))
	for _, child := range a.root.children {
		child.fail = a.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.fail
			for fail != nil && fail.children[ch] == nil {
				fail = fail.fail
			}
			if fail == nil {
				child.fail = a.root
			} else {
				child.fail = fail.children[ch]
				child.output = append(child.output, child.fail.output...)
			}
		}
	}
}

// Search returns every pattern occurrence in text, in scan order.
func (a *Automaton) Search(text string) []Match {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.built || len(a.patterns) == 0 {
		return nil
	}

	var matches []Match
	n := a.root
	for i, ch := range strings.ToUpper(text) {
		n = a.step(n, ch)
		for _, idx := range n.output {
			p := a.patterns[idx]
			matches = append(matches, Match{
				Pattern:  p.Text,
				Data:     p.Data,
				Position: i - len(p.Text) + 1,
			})
		}
	}
	return matches
}

// SearchFirst returns the first occurrence of any pattern in text.
func (a *Automaton) SearchFirst(text string) (Match, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.built || len(a.patterns) == 0 {
		return Match{}, false
	}

	n := a.root
	for i, ch := range strings.ToUpper(text) {
		n = a.step(n, ch)
		if len(n.output) > 0 {
			p := a.patterns[n.output[0]]
			return Match{
				Pattern:  p.Text,
				Data:     p.Data,
				Position: i - len(p.Text) + 1,
			}, true
		}
	}
	return Match{}, false
}

// step advances one input rune, following failure links on mismatch.
func (a *Automaton) step(n *node, ch rune) *node {
	for n != nil && n.children[ch] == nil {
		n = n.fail
	}
	if n == nil {
		return a.root
	}
	return n.children[ch]
}

// Contains reports whether any pattern occurs in text.
func (a *Automaton) Contains(text string) bool {
	_, ok := a.SearchFirst(text)
	return ok
}

// PatternCount returns the number of registered patterns.
func (a *Automaton) PatternCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.patterns)
}

// Clear drops all patterns and resets the automaton to empty.
func (a *Automaton) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.root = newNode(0)
	a.patterns = nil
	a.built = false
}

// Matcher is a pre-built automaton over a fixed pattern list. It is the
// form the rest of the codebase consumes; a nil Matcher matches nothing.
type Matcher struct {
	auto *Automaton
}

// NewMatcher builds a matcher over the given patterns. Empty strings in the
// list are skipped.
func NewMatcher(patterns []string) *Matcher {
	a := New()
	a.AddPatterns(patterns, nil)
	a.Build()
	return &Matcher{auto: a}
}

// Contains reports whether any pattern occurs in text.
func (m *Matcher) Contains(text string) bool {
	if m == nil || m.auto == nil {
		return false
	}
	return m.auto.Contains(text)
}

// First returns the first pattern occurrence in text.
func (m *Matcher) First(text string) (Match, bool) {
	if m == nil || m.auto == nil {
		return Match{}, false
	}
	return m.auto.SearchFirst(text)
}

// Patterns returns the number of patterns the matcher was built with.
func (m *Matcher) Patterns() int {
	if m == nil || m.auto == nil {
		return 0
	}
	return m.auto.PatternCount()
}
