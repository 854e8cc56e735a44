// Package ui holds the operator-facing alert channels.
package ui

import (
	"context"

	"molt-highlights/internal/core/ports"
)

// Fanout delivers each alert to every channel in order.
type Fanout []ports.Alerter

var _ ports.Alerter = Fanout(nil)

func (f Fanout) Notify(ctx context.Context, message string) {
	for _, a := range f {
		if a != nil {
			a.Notify(ctx, message)
		}
	}
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Recorder keeps alerts in memory, for dry runs and tests.
type Recorder struct {
	Messages []string
}

func (r *Recorder) Notify(_ context.Context, message string) {
	r.Messages = append(r.Messages, message)
}
