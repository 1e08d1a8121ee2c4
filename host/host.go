// Package host models the foreground/background signals of the environment the
// session manager runs in.
package host

import (
	"context"
	"os"
	"os/signal"
)

// Signal is a host environment event.
type Signal int

const (
	SignalVisible Signal = iota // Application returned to the foreground
	SignalHidden                // Application moved to the background
	SignalFocus                 // Window gained focus
	SignalBlur                  // Window lost focus
)

func (s Signal) String() string {
	switch s {
	case SignalVisible:
		return "visible"
	case SignalHidden:
		return "hidden"
	case SignalFocus:
		return "focus"
	case SignalBlur:
		return "blur"
	}
	return "unknown"
}

// Handler receives host signals.
type Handler interface {
	HandleHostSignal(ctx context.Context, s Signal)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, s Signal)

func (f HandlerFunc) HandleHostSignal(ctx context.Context, s Signal) {
	f(ctx, s)
}

// Relay forwards OS signals to h, translated through mapping, until ctx is
// done. It blocks; run it in its own goroutine.
func Relay(ctx context.Context, h Handler, mapping map[os.Signal]Signal) {
	if len(mapping) == 0 {
		return
	}
	ch := make(chan os.Signal, len(mapping))
	sigs := make([]os.Signal, 0, len(mapping))
	for s := range mapping {
		sigs = append(sigs, s)
	}
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-ch:
			h.HandleHostSignal(ctx, mapping[s])
		}
	}
}
