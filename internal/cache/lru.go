// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package cache

import (
	"sync"
	"time"
)

// lruEntry is a node in the dedup cache's doubly linked list.
type lruEntry struct {
	key       string
	seenAt    time.Time
	prev      *lruEntry
	next      *lruEntry
	expiresAt time.Time
}

// DedupLRU is a bounded recent-key filter with TTL. The ingestion engine
// records every external event id it has processed; upstream pagination
// overlaps heavily between runs, and a hit here classifies the event as a
// duplicate without touching the database. A miss proves nothing (the row
// may predate this process) so callers still verify against storage.
//
// All operations are O(1): a hashmap gives lookups, a doubly linked list
// with sentinel head/tail gives recency ordering and eviction.
type DedupLRU struct {
	mu sync.RWMutex

	capacity int
	ttl      time.Duration

	items map[string]*lruEntry

	// head.next is most recently used, tail.prev is least recently used.
	head *lruEntry
	tail *lruEntry

	hits   int64
	misses int64
}

// NewDedupLRU creates a filter holding at most capacity keys, each valid
// for ttl. Non-positive arguments fall back to 8192 keys and one hour.
func NewDedupLRU(capacity int, ttl time.Duration) *DedupLRU {
	if capacity <= 0 {
		capacity = 8192
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	c := &DedupLRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Seen reports whether key is present and unexpired. When it is not, the
// key is recorded so the next call returns true. This is the single
// check-and-record step the ingestion loop uses per event.
func (c *DedupLRU) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if entry, exists := c.items[key]; exists {
		if !now.After(entry.expiresAt) {
			c.moveToFront(entry)
			c.hits++
			return true
		}
		c.removeEntry(entry)
	}

	entry := &lruEntry{
		key:       key,
		seenAt:    now,
		expiresAt: now.Add(c.ttl),
	}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}

	c.misses++
	return false
}

// Contains reports presence without recording the key or touching
// recency order.
func (c *DedupLRU) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, exists := c.items[key]; exists {
		return !time.Now().After(entry.expiresAt)
	}
	return false
}

// Record marks key as seen without reporting prior presence.
func (c *DedupLRU) Record(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expiresAt := now.Add(c.ttl)

	if entry, exists := c.items[key]; exists {
		entry.seenAt = now
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry{
		key:       key,
		seenAt:    now,
		expiresAt: expiresAt,
	}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove deletes key from the filter. Returns true if it was present.
func (c *DedupLRU) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		c.removeEntry(entry)
		return true
	}
	return false
}

// Len returns the number of keys currently held.
func (c *DedupLRU) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear drops every key.
func (c *DedupLRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*lruEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Stats returns hit/miss counters and the current size.
func (c *DedupLRU) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.items)
}

// List manipulation below requires c.mu held.

func (c *DedupLRU) addToFront(entry *lruEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *DedupLRU) moveToFront(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *DedupLRU) removeEntry(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

func (c *DedupLRU) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
