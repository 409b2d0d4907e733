package render

// StrategyOptions are the inputs to thread strategy resolution.
type StrategyOptions struct {
	Base                     ThreadStrategy
	AutoConcurrency          bool
	LayoutOnBackgroundThread bool
}

// ResolveStrategy applies, in order: auto concurrency forces MultiThread and
// turns background layout off; background layout picks MultiThread for an
// async base and PartOnLayout otherwise; else Base is used. The second result
// is the effective background layout flag.
func ResolveStrategy(o StrategyOptions) (ThreadStrategy, bool) {
	if o.AutoConcurrency {
		return MultiThread, false
	}
	if o.LayoutOnBackgroundThread {
		if o.Base.IsAsync() {
			return MultiThread, true
		}
		return PartOnLayout, true
	}
	return o.Base, false
}

// supportsVsyncAlignedFlush reports whether s flushes UI operations on the
// UI thread during measure.
func supportsVsyncAlignedFlush(s ThreadStrategy) bool {
	return s == AllOnUI || s == PartOnLayout
}

// pairedStrategy returns the strategy reached by attaching the engine to the
// UI thread (attach) or detaching it. ok is false when s has no pair in that
// direction.
func pairedStrategy(s ThreadStrategy, attach bool) (next ThreadStrategy, ok bool) {
	if attach {
		switch s {
		case MostOnTASM:
			return AllOnUI, true
		case MultiThread:
			return PartOnLayout, true
		}
		return s, false
	}
	switch s {
	case AllOnUI:
		return MostOnTASM, true
	case PartOnLayout:
		return MultiThread, true
	}
	return s, false
}
