// ABOUTME: Bounded worker pool running user callbacks off the reader goroutine
// ABOUTME: Work is sharded by key so callbacks for one id stay in order

package queryserver

import (
	"runtime/debug"
	"sync"

	"github.com/harper/codeql-relay/internal/logger"
)

const (
	defaultWorkers = 4
	// backlogWarn is the queue depth at which a shard's backlog is logged.
	backlogWarn = 1024
)

// Pool runs callbacks on a fixed set of workers, one per shard. Submit never
// blocks, so a slow callback delays only the keys sharing its shard.
type Pool struct {
	shards []*shard
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type shard struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	warned bool
}

// NewPool starts workers goroutines, defaultWorkers when workers <= 0.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	p := &Pool{shards: make([]*shard, workers)}
	for i := range p.shards {
		s := &shard{wake: make(chan struct{}, 1)}
		p.shards[i] = s
		p.wg.Add(1)
		go p.work(i, s)
	}
	return p
}

func (p *Pool) work(idx int, s *shard) {
	defer p.wg.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if len(s.queue) < backlogWarn/2 && s.warned {
			s.warned = false
			logger.Debug("Callback shard %d backlog drained", idx)
		}
		s.mu.Unlock()

		run(fn)
	}
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Callback panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

// Submit queues fn on the shard for key and returns without waiting.
// After Close, fn runs on the calling goroutine.
func (p *Pool) Submit(key int64, fn func()) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		run(fn)
		return
	}
	idx := key % int64(len(p.shards))
	if idx < 0 {
		idx = -idx
	}
	s := p.shards[idx]

	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if len(s.queue) >= backlogWarn && !s.warned {
		s.warned = true
		logger.Warn("Callback shard %d has %d queued callbacks; a handler is slow", idx, len(s.queue))
	}
	s.mu.Unlock()
	p.mu.RUnlock()

	s.signal()
}

func (s *shard) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Backlog reports how many callbacks are queued across all shards.
func (p *Pool) Backlog() int {
	n := 0
	for _, s := range p.shards {
		s.mu.Lock()
		n += len(s.queue)
		s.mu.Unlock()
	}
	return n
}

// Close stops accepting work and waits for queued callbacks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, s := range p.shards {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.signal()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
