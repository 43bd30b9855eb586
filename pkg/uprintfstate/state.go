// Package uprintfstate holds the process-global mutable flags spec.md §5
// calls out as the only state a concurrent caller of Printf would need to
// synchronize: "the warning flag, and the 'has the PC-base question been
// answered yet' flag from §4.I". The warning flag itself lives in
// pkg/ulog (it is set as a side effect of logging); this package is the
// PC-base one, plus the lazily-computed load-base delta it guards.
package uprintfstate

import "go.uber.org/atomic"

// pcBaseResolved guards the one-time PC-base discovery spec.md §4.I and §9
// describe: "on the first call only, determines whether return addresses
// are absolute ... or load-base relative". Subsequent calls reuse the
// answer instead of re-deriving it.
var pcBaseResolved = atomic.NewBool(false)

// loadBaseDelta is subtracted from an observed return address once it is
// known to be load-base-relative; zero (the no-op default) once addresses
// are known to already be absolute.
var loadBaseDelta = atomic.NewUint64(0)

// Resolved reports whether the first call has already answered the
// absolute-vs-relative question.
func Resolved() bool { return pcBaseResolved.Load() }

// Resolve records the answer to the PC-base question exactly once; later
// callers calling Resolve again are no-ops (first writer wins), matching
// spec.md's "on the first call only" wording under the single-caller
// threading model of spec.md §5.
func Resolve(delta uint64) {
	if pcBaseResolved.CompareAndSwap(false, true) {
		loadBaseDelta.Store(delta)
	}
}

// Delta returns the currently recorded load-base delta (0 until Resolve
// has run).
func Delta() uint64 { return loadBaseDelta.Load() }

// Reset clears both flags; exposed for test isolation only (spec.md's
// production lifecycle never resets this after process start).
func Reset() {
	pcBaseResolved.Store(false)
	loadBaseDelta.Store(0)
}
