package lineitem

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"easyquote/core/quote"
	"easyquote/internal/metrics"
)

// Guard carries the synchronizer conditions under which emission is suppressed
type Guard struct {
	// Initializing is set while a persisted snapshot is being loaded
	Initializing bool

	// Pending is set while a debounced edit or a pricing fetch is outstanding
	Pending bool
}

// EmitResult is the outcome of offering a snapshot
type EmitResult int

const (
	EmitSuppressed EmitResult = iota
	EmitUnchanged
	Emitted
)

func (r EmitResult) String() string {
	switch r {
	case EmitSuppressed:
		return "suppressed"
	case EmitUnchanged:
		return "unchanged"
	case Emitted:
		return "emitted"
	}
	return "unknown"
}

// ContentHash identifies a canonical snapshot serialization
type ContentHash [32]byte

// Hex returns the hash as a hex string
func (h ContentHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Canonical serializes a snapshot deterministically: struct fields in declaration
// order, prompts already sorted by the field store, decimals in normalized form.
func Canonical(s quote.Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// Emitter notifies the parent only when the snapshot content changes
type Emitter struct {
	notify  func(quote.Snapshot)
	last    ContentHash
	hasLast bool
}

// NewEmitter creates an emitter delivering changed snapshots to notify
func NewEmitter(notify func(quote.Snapshot)) *Emitter {
	return &Emitter{notify: notify}
}

// Offer delivers s unless the guard suppresses it or its content equals the last emission
func (e *Emitter) Offer(s quote.Snapshot, g Guard) (EmitResult, error) {
	if g.Initializing || g.Pending || (!s.IsCustom() && len(s.Prompts) == 0) {
		metrics.SnapshotEmissions.WithLabelValues(EmitSuppressed.String()).Inc()
		return EmitSuppressed, nil
	}

	data, err := Canonical(s)
	if err != nil {
		return EmitSuppressed, err
	}
	h := ContentHash(sha256.Sum256(data))
	if e.hasLast && h == e.last {
		metrics.SnapshotEmissions.WithLabelValues(EmitUnchanged.String()).Inc()
		return EmitUnchanged, nil
	}

	e.last, e.hasLast = h, true
	if e.notify != nil {
		e.notify(s)
	}
	metrics.SnapshotEmissions.WithLabelValues(Emitted.String()).Inc()
	return Emitted, nil
}

// Prime records s as already known to the parent without notifying it
func (e *Emitter) Prime(s quote.Snapshot) error {
	data, err := Canonical(s)
	if err != nil {
		return err
	}
	e.last, e.hasLast = ContentHash(sha256.Sum256(data)), true
	return nil
}
