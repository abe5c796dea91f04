// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"context"
	"sync"

	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

type pushEvent struct {
	generation uint64
	update     tdproto.Update
}

// eventQueue is an unbounded FIFO. push never blocks so the transport
// reader keeps delivering replies while the loop is busy.
type eventQueue struct {
	mu     sync.Mutex
	items  []pushEvent
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(evt pushEvent) {
	q.mu.Lock()
	q.items = append(q.items, evt)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []pushEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// run handles queued updates one at a time until ctx is cancelled.
func (a *Adapter) run(ctx context.Context) {
	defer close(a.loopDone)
	a.log.Debug().Msg("Event loop started")
	for {
		select {
		case <-ctx.Done():
			a.log.Debug().Msg("Event loop stopped")
			return
		case <-a.events.notify:
			for _, evt := range a.events.drain() {
				if ctx.Err() != nil {
					return
				}
				a.handleEvent(ctx, evt)
			}
		}
	}
}

func (a *Adapter) handleEvent(ctx context.Context, evt pushEvent) {
	if !a.isCurrent(evt.generation) {
		a.metrics.StaleUpdates.Inc()
		a.log.Debug().
			Str("type", evt.update.TDType()).
			Uint64("generation", evt.generation).
			Msg("Dropping update from discarded transport")
		return
	}

	switch upd := evt.update.(type) {
	case *tdproto.UpdateAuthorizationState:
		a.handleAuthorizationState(ctx, evt.generation, upd.State)
	case *tdproto.UpdateNewMessage:
		if err := a.handleNewMessage(ctx, &upd.Message); err != nil {
			a.log.Error().Err(err).
				Int64("message_id", upd.Message.ID).
				Msg("Failed to relay inbound message")
		}
	default:
		a.log.Trace().Str("type", evt.update.TDType()).Msg("Ignoring update")
	}
}
