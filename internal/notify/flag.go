// Package notify provides the raise/clear flag behind the "new message" and
// "new favorite" badges.
package notify

import "sync"

// Flag is a one-shot notification signal. Raising and clearing only touch the
// flag itself; nothing it was derived from is modified.
type Flag struct {
	mu  sync.Mutex
	set bool
	gen uint64
}

// Raise sets the flag.
func (f *Flag) Raise() {
	f.Set(true)
}

// Clear resets the flag.
func (f *Flag) Clear() {
	f.Set(false)
}

// Set assigns the flag, e.g. from a freshly computed unread signal.
func (f *Flag) Set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set == v {
		return
	}
	f.set = v
	f.gen++
}

// IsSet reports the current value.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Version increments on every change; callers can poll it to detect edges.
func (f *Flag) Version() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}
