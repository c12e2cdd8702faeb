// Package lifecycle defines the ApplicationLifecycle capability the
// spec requires be passed into the coordinator at construction rather
// than reached for as a process-wide singleton (spec §9).
package lifecycle

import (
	"os"
	"os/signal"
	"sync"
)

// Lifecycle lets the coordinator learn when the host application has
// been foregrounded, without reaching into a platform singleton.
type Lifecycle interface {
	OnForeground(fn func())
}

// SignalLifecycle is a CLI-appropriate stand-in for a real mobile/app
// host: it treats a received SIGUSR1 as "the application came to the
// foreground", which is how the demo CLI simulates foregrounding
// (SPEC_FULL.md's CLI & dashboard section).
type SignalLifecycle struct {
	sig chan os.Signal

	mu   sync.Mutex
	subs []func()
}

func NewSignalLifecycle(sig os.Signal) *SignalLifecycle {
	l := &SignalLifecycle{sig: make(chan os.Signal, 1)}
	signal.Notify(l.sig, sig)
	go l.loop()
	return l
}

func (l *SignalLifecycle) OnForeground(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}

func (l *SignalLifecycle) loop() {
	for range l.sig {
		l.mu.Lock()
		subs := append([]func(){}, l.subs...)
		l.mu.Unlock()
		for _, fn := range subs {
			fn()
		}
	}
}

// Noop never fires; useful for tests and non-interactive deployments.
type Noop struct{}

func (Noop) OnForeground(func()) {}
