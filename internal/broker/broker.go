// Package broker serializes model requests onto a single worker
// goroutine and correlates replies with their callers by request id.
// Callers block only on their own reply, so several requests can be
// in flight at once while the engine itself runs them one at a time.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrNoWorker is returned when the worker goroutine is not running.
var ErrNoWorker = errors.New("broker: worker not running")

// Engine is the request target. Satisfied by engine.Engine.
type Engine interface {
	Load() error
	Infer(tensor []float32) ([]float32, error)
}

type kind int

const (
	kindLoadModel kind = iota
	kindRecognize
)

type request struct {
	id     uint64
	kind   kind
	tensor []float32
}

type response struct {
	id        uint64
	embedding []float32
	err       error
}

const requestBacklog = 32

// Broker owns the worker goroutine and the table of in-flight
// requests.
type Broker struct {
	engine Engine

	mu      sync.Mutex
	pending map[uint64]chan response
	lastID  uint64
	running bool
	stopped bool

	requests chan request
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Broker. Call Start before issuing requests.
func New(engine Engine) *Broker {
	return &Broker{
		engine:   engine,
		pending:  make(map[uint64]chan response),
		requests: make(chan request, requestBacklog),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine. Starting twice is a no-op; a
// closed broker cannot be restarted.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrNoWorker
	}
	if b.running {
		return nil
	}
	b.running = true
	go b.serve()
	return nil
}

// LoadModel asks the worker to (re)load the embedding model and waits
// for the outcome.
func (b *Broker) LoadModel(ctx context.Context) error {
	resp, err := b.call(ctx, request{kind: kindLoadModel})
	if err != nil {
		return err
	}
	return resp.err
}

// Recognize submits an encoded crop and waits for its embedding.
func (b *Broker) Recognize(ctx context.Context, tensor []float32) ([]float32, error) {
	resp, err := b.call(ctx, request{kind: kindRecognize, tensor: tensor})
	if err != nil {
		return nil, err
	}
	return resp.embedding, resp.err
}

// call assigns the next id, registers the reply channel, and blocks
// until the reply arrives or ctx ends. A caller that gives up forgets
// its id, so the eventual reply is dropped instead of delivered.
func (b *Broker) call(ctx context.Context, req request) (response, error) {
	b.mu.Lock()
	if !b.running || b.stopped {
		b.mu.Unlock()
		return response{}, ErrNoWorker
	}
	b.lastID++
	req.id = b.lastID
	ch := make(chan response, 1)
	b.pending[req.id] = ch
	b.mu.Unlock()

	select {
	case b.requests <- req:
	case <-b.stop:
		b.forget(req.id)
		return response{}, ErrNoWorker
	case <-ctx.Done():
		b.forget(req.id)
		return response{}, ctx.Err()
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		b.forget(req.id)
		return response{}, ctx.Err()
	}
}

func (b *Broker) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Broker) serve() {
	defer close(b.done)
	for {
		// Check stop first so a close does not race queued work
		select {
		case <-b.stop:
			return
		default:
		}
		select {
		case <-b.stop:
			return
		case req := <-b.requests:
			b.resolve(b.handle(req))
		}
	}
}

func (b *Broker) handle(req request) response {
	switch req.kind {
	case kindLoadModel:
		return response{id: req.id, err: b.engine.Load()}
	case kindRecognize:
		embedding, err := b.engine.Infer(req.tensor)
		return response{id: req.id, embedding: embedding, err: err}
	default:
		return response{id: req.id, err: fmt.Errorf("unknown request kind %d", req.kind)}
	}
}

func (b *Broker) resolve(resp response) {
	b.mu.Lock()
	ch, ok := b.pending[resp.id]
	if ok {
		delete(b.pending, resp.id)
	}
	b.mu.Unlock()

	if !ok {
		log.WithField("id", resp.id).Warn("dropping reply with no pending request")
		return
	}
	ch <- resp
}

// failPending answers every in-flight request with ErrNoWorker. Only
// called after the worker has exited.
func (b *Broker) failPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.pending {
		ch <- response{id: id, err: ErrNoWorker}
		delete(b.pending, id)
	}
}

// Close stops the worker, waits for it to finish its current request,
// and fails whatever was still queued. Safe to call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	wasRunning := b.running
	b.running = false
	b.mu.Unlock()

	close(b.stop)
	if wasRunning {
		<-b.done
	}
	b.failPending()
	return nil
}
