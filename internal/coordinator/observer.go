package coordinator

// notifyObservers delivers snap to every registered observer. It
// iterates a copy of the observer set so registration and removal stay
// safe from within a delivery pass.
func (c *Coordinator) notifyObservers(snap Snapshot) {
	if len(c.observers) == 0 {
		return
	}
	fns := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	for _, fn := range fns {
		fn(snap)
	}
}
