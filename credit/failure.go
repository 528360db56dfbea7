package credit

import (
	"sync"
	"time"
)

const failureWindow = 5 * time.Minute

// failureTracker counts report delivery failures per credit record inside a
// sliding window. The manager clears the in-flight report for a clean retry
// while the count stays under the threshold and escalates to cutoff once it
// is reached.
type failureTracker struct {
	mu        sync.Mutex
	threshold int
	records   map[recordKey][]time.Time
	now       func() time.Time
}

func newFailureTracker(threshold int, now func() time.Time) *failureTracker {
	return &failureTracker{
		threshold: threshold,
		records:   make(map[recordKey][]time.Time),
		now:       now,
	}
}

// recordFailure registers a delivery failure and returns true once the
// threshold is reached within the window.
func (f *failureTracker) recordFailure(k recordKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	cutoff := now.Add(-failureWindow)

	valid := f.records[k][:0]
	for _, t := range f.records[k] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	valid = append(valid, now)
	f.records[k] = valid

	return len(valid) >= f.threshold
}

// recordSuccess clears the failure history after a grant is received.
func (f *failureTracker) recordSuccess(k recordKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, k)
}

// remove drops all history for a record.
func (f *failureTracker) remove(k recordKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, k)
}
