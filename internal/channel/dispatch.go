package channel

// Dispatcher routes events by name to one registered handler. S is the state
// the handler transitions and R is what it returns to the caller's loop.
type Dispatcher[S, R any] struct {
	handlers map[string]func(S, Event) R
	fallback func(S, Event) R
}

// NewDispatcher returns an empty dispatch table.
func NewDispatcher[S, R any]() *Dispatcher[S, R] {
	return &Dispatcher[S, R]{handlers: make(map[string]func(S, Event) R)}
}

// On registers the handler for an event name, replacing any previous one.
func (d *Dispatcher[S, R]) On(name string, h func(S, Event) R) {
	d.handlers[name] = h
}

// OnUnknown registers the handler for unregistered event names.
func (d *Dispatcher[S, R]) OnUnknown(h func(S, Event) R) {
	d.fallback = h
}

// Dispatch runs the handler for ev. ok is false when nothing handled it.
func (d *Dispatcher[S, R]) Dispatch(s S, ev Event) (r R, ok bool) {
	if h, found := d.handlers[ev.Name]; found {
		return h(s, ev), true
	}
	if d.fallback != nil {
		return d.fallback(s, ev), false
	}
	return r, false
}
