package es

// Aggregate is implemented by every event-sourced entity.
//
// Apply must be a pure function of the current state and the envelope: it may
// not read clocks, generate ids or perform I/O, otherwise replay would diverge
// from the original run. Unknown variants must return an error.
type Aggregate interface {
	Root() *Root
	Apply(env Envelope) error
}

// Root carries the bookkeeping shared by all aggregates. Embed it by value and
// return its address from Root().
type Root struct {
	id          AggregateID
	typ         string
	version     int64
	persisted   int64
	initialized bool
	uncommitted []Envelope
}

// ID returns the aggregate's identity.
func (r *Root) ID() AggregateID { return r.id }

// Type returns the aggregate type, e.g. "item".
func (r *Root) Type() string { return r.typ }

// Initialized reports whether the creation event has been applied.
func (r *Root) Initialized() bool { return r.initialized }

// Version returns the version of the last applied event.
func (r *Root) Version() (int64, error) {
	if !r.initialized {
		return 0, ErrUninitialized
	}
	return r.version, nil
}

// PersistedVersion returns the version the event log held when the aggregate
// was loaded or last saved.
func (r *Root) PersistedVersion() int64 { return r.persisted }

// Uncommitted returns the envelopes raised since load or the last save.
func (r *Root) Uncommitted() []Envelope {
	out := make([]Envelope, len(r.uncommitted))
	copy(out, r.uncommitted)
	return out
}

// Dirty reports whether there are envelopes waiting to be saved.
func (r *Root) Dirty() bool { return len(r.uncommitted) > 0 }

// Guard returns ErrUninitialized unless the creation event has been applied.
// Mutators call it first.
func (r *Root) Guard() error {
	if !r.initialized {
		return ErrUninitialized
	}
	return nil
}

func (r *Root) markPersisted() {
	r.persisted = r.version
	r.uncommitted = nil
}

// Begin assigns identity to a fresh instance ahead of its creation event.
func Begin(a Aggregate, id AggregateID, aggregateType string) error {
	r := a.Root()
	if r.initialized || r.version != 0 {
		return Errorf(CodeInternal, "begin", "aggregate %s already initialized", r.id)
	}
	if id.IsZero() {
		return Errorf(CodeInternal, "begin", "aggregate id is required")
	}
	r.id = id
	r.typ = aggregateType
	return nil
}

// Raise positions evt at version+1, applies it and queues it for saving.
// If Apply fails the aggregate is left unchanged.
func Raise(a Aggregate, evt Event, stamp Stamp) error {
	r := a.Root()
	if r.id.IsZero() {
		return Errorf(CodeInternal, "raise", "aggregate has no identity; call Begin first")
	}
	env := Envelope{
		AggregateType: r.typ,
		AggregateID:   r.id,
		Version:       r.version + 1,
		ActorID:       stamp.Actor,
		OccurredAt:    stamp.At,
		Event:         evt,
	}
	if err := a.Apply(env); err != nil {
		return err
	}
	r.version = env.Version
	r.initialized = true
	r.uncommitted = append(r.uncommitted, env)
	return nil
}

// Replay folds a persisted history into a fresh instance. The history must
// start at version 1 and be gap-free; the result has nothing uncommitted.
func Replay(a Aggregate, history []Envelope) error {
	r := a.Root()
	if r.initialized || r.version != 0 {
		return Errorf(CodeInternal, "replay", "replay into a used aggregate")
	}
	for _, env := range history {
		if env.Version != r.version+1 {
			return Errorf(CodeInternal, "replay",
				"aggregate %s: expected version %d, got %d", env.AggregateID, r.version+1, env.Version)
		}
		if r.version == 0 {
			r.id = env.AggregateID
			r.typ = env.AggregateType
		} else if env.AggregateID != r.id {
			return Errorf(CodeInternal, "replay",
				"event for %s in history of %s", env.AggregateID, r.id)
		}
		if err := a.Apply(env); err != nil {
			return Wrap(CodeInternal, "replay", err)
		}
		r.version = env.Version
		r.initialized = true
	}
	r.markPersisted()
	return nil
}
