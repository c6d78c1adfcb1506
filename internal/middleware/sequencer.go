package middleware

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sequencer runs each sender's updates one at a time in arrival order while
// different senders proceed in parallel. It relies on being called in
// arrival order, so the bot must be built with a single worker and
// bot.WithNotAsyncHandlers.
type Sequencer struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

func NewSequencer() *Sequencer {
	return &Sequencer{queues: make(map[int64][]func())}
}

// SequenceMiddleware queues the update behind earlier ones from the same
// sender and returns without waiting for it to be handled.
func (s *Sequencer) SequenceMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		from := sender(update)
		if from == nil {
			next(ctx, b, update)
			return
		}
		s.enqueue(from.ID, func() { next(ctx, b, update) })
	}
}

func (s *Sequencer) enqueue(id int64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, draining := s.queues[id]
	s.queues[id] = append(q, fn)
	if !draining {
		s.wg.Add(1)
		go s.drain(id)
	}
}

func (s *Sequencer) drain(id int64) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[id]
		if len(q) == 0 {
			delete(s.queues, id)
			s.mu.Unlock()
			return
		}
		fn := q[0]
		q[0] = nil
		s.queues[id] = q[1:]
		s.mu.Unlock()

		fn()
	}
}

// Wait blocks until every queued update has been handled.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

func (s *Sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
