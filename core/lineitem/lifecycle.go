package lineitem

// Lifecycle tracks where a line item's prompt values come from
type Lifecycle int

const (
	// LifecycleNew has no saved configuration; remote defaults are accepted
	LifecycleNew Lifecycle = iota

	// LifecycleLoaded was restored from persisted data and not touched since
	LifecycleLoaded

	// LifecycleEdited has been changed by the user (or confirmed from defaults)
	LifecycleEdited
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleNew:
		return "new"
	case LifecycleLoaded:
		return "loaded"
	case LifecycleEdited:
		return "edited"
	}
	return "unknown"
}

// AcceptsRemoteDefaults reports whether describe defaults may be written into the field store.
// Persisted values are authoritative, so only brand-new items accept them.
func (l Lifecycle) AcceptsRemoteDefaults() bool {
	return l == LifecycleNew
}

// Phase is the synchronizer's position in its state machine
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseAwaitingRecompute
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseAwaitingRecompute:
		return "awaiting_recompute"
	}
	return "unknown"
}

// RequestShape is the kind of pricing call a settled edit produces
type RequestShape int

const (
	ShapeNone RequestShape = iota
	ShapeDescribe
	ShapeRecompute
)

func (s RequestShape) String() string {
	switch s {
	case ShapeDescribe:
		return "describe"
	case ShapeRecompute:
		return "recompute"
	}
	return "none"
}

// ClassifyRequest decides the request shape for a settled edit.
//
//	NEW                               -> describe, whatever the local values
//	LOADED, first pass                -> recompute with the persisted values
//	LOADED, later pass, not forced    -> none
//	EDITED with parameters            -> recompute
//	EDITED without parameters         -> describe
//
// A loaded item never issues a describe here: its saved configuration must not be
// replaced by remote defaults.
func ClassifyRequest(l Lifecycle, hasParams, initialPassDone, forced bool) RequestShape {
	switch l {
	case LifecycleNew:
		return ShapeDescribe
	case LifecycleLoaded:
		if !initialPassDone || forced {
			return ShapeRecompute
		}
		return ShapeNone
	case LifecycleEdited:
		if hasParams {
			return ShapeRecompute
		}
		return ShapeDescribe
	}
	return ShapeNone
}
