package indicator

// Fake records indicator requests. Completion hooks are held until Complete.
type Fake struct {
	Started []Signal
	Stopped []Signal
	pending map[Signal]func()
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{pending: make(map[Signal]func())}
}

// Start records sig and holds done.
func (f *Fake) Start(sig Signal, done func()) {
	f.Started = append(f.Started, sig)
	if done != nil {
		f.pending[sig] = done
	}
}

// Stop records sig and drops its hook.
func (f *Fake) Stop(sig Signal) {
	f.Stopped = append(f.Stopped, sig)
	delete(f.pending, sig)
}

// Complete runs the held hook for sig and reports whether there was one.
func (f *Fake) Complete(sig Signal) bool {
	done, ok := f.pending[sig]
	if !ok {
		return false
	}
	delete(f.pending, sig)
	done()
	return true
}

// Last returns the most recently started signal.
func (f *Fake) Last() (Signal, bool) {
	if len(f.Started) == 0 {
		return 0, false
	}
	return f.Started[len(f.Started)-1], true
}

// Count returns how many times sig was started.
func (f *Fake) Count(sig Signal) int {
	n := 0
	for _, s := range f.Started {
		if s == sig {
			n++
		}
	}
	return n
}
