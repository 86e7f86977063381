// SPDX-License-Identifier: MIT

package downloader

import (
	"container/heap"
	"time"
)

// backoffEntry is one (wake-time, Job) pair awaiting re-admission into the
// work queue.
type backoffEntry struct {
	wakeAt time.Time
	job    Job
}

// backoffSet is an ordered min-heap of backoffEntry, ordered by wakeAt.
type backoffSet []backoffEntry

func (s backoffSet) Len() int            { return len(s) }
func (s backoffSet) Less(i, j int) bool  { return s[i].wakeAt.Before(s[j].wakeAt) }
func (s backoffSet) Swap(i, j int)       { s[i], s[j] = s[j], s[i] }
func (s *backoffSet) Push(x any)         { *s = append(*s, x.(backoffEntry)) }
func (s *backoffSet) Pop() any {
	old := *s
	n := len(old)
	entry := old[n-1]
	*s = old[:n-1]
	return entry
}

func (s *backoffSet) insert(wakeAt time.Time, job Job) {
	heap.Push(s, backoffEntry{wakeAt: wakeAt, job: job})
}

// peek returns the head entry without removing it.
func (s backoffSet) peek() (backoffEntry, bool) {
	if len(s) == 0 {
		return backoffEntry{}, false
	}
	return s[0], true
}

func (s *backoffSet) pop() backoffEntry {
	return heap.Pop(s).(backoffEntry)
}

// nextBackoff computes the next backoff duration, bounded by maxBackoff.
func nextBackoff(current time.Duration, factor float64, maxBackoff time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > maxBackoff {
		next = maxBackoff
	}
	if next < current {
		// factor < 1.0 would shrink backoff; configuration requires
		// factor >= 1.0, so guard against misconfiguration regressing it.
		next = current
	}
	return next
}
