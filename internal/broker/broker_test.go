package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine echoes tensors back with every value incremented, which
// makes reply mixups visible.
type stubEngine struct {
	mu       sync.Mutex
	loads    int
	loadErr  error
	inferErr error

	entered chan struct{} // signaled when Infer begins, if set
	block   chan struct{} // Infer waits for this to close, if set
}

func (s *stubEngine) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.loadErr
}

func (s *stubEngine) Infer(tensor []float32) ([]float32, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.inferErr != nil {
		return nil, s.inferErr
	}
	out := make([]float32, len(tensor))
	for i, v := range tensor {
		out[i] = v + 1
	}
	return out, nil
}

func (s *stubEngine) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestCallsBeforeStart(t *testing.T) {
	b := New(&stubEngine{})

	err := b.LoadModel(context.Background())
	assert.ErrorIs(t, err, ErrNoWorker)

	_, err = b.Recognize(context.Background(), []float32{1})
	assert.ErrorIs(t, err, ErrNoWorker)
}

func TestLoadModel(t *testing.T) {
	eng := &stubEngine{}
	b := New(eng)
	require.NoError(t, b.Start())
	defer b.Close()

	require.NoError(t, b.LoadModel(context.Background()))
	assert.Equal(t, 1, eng.loadCount())
}

func TestLoadModelPropagatesError(t *testing.T) {
	eng := &stubEngine{loadErr: errors.New("no such model")}
	b := New(eng)
	require.NoError(t, b.Start())
	defer b.Close()

	err := b.LoadModel(context.Background())
	assert.ErrorIs(t, err, eng.loadErr)
}

func TestRecognize(t *testing.T) {
	b := New(&stubEngine{})
	require.NoError(t, b.Start())
	defer b.Close()

	out, err := b.Recognize(context.Background(), []float32{41, 1})
	require.NoError(t, err)
	assert.Equal(t, []float32{42, 2}, out)
}

func TestRecognizePropagatesEngineError(t *testing.T) {
	eng := &stubEngine{inferErr: errors.New("model not ready")}
	b := New(eng)
	require.NoError(t, b.Start())
	defer b.Close()

	_, err := b.Recognize(context.Background(), []float32{1})
	assert.ErrorIs(t, err, eng.inferErr)
}

func TestPipelinedRepliesReachTheirCallers(t *testing.T) {
	b := New(&stubEngine{})
	require.NoError(t, b.Start())
	defer b.Close()

	const n = 16
	var wg sync.WaitGroup
	results := make([][]float32, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = b.Recognize(context.Background(), []float32{float32(i)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []float32{float32(i) + 1}, results[i], "caller %d", i)
	}
}

func TestCanceledCallerDropsLateReply(t *testing.T) {
	eng := &stubEngine{
		entered: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	b := New(eng)
	require.NoError(t, b.Start())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Recognize(ctx, []float32{7})
		errCh <- err
	}()

	<-eng.entered // worker is inside Infer
	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	// Let the stale reply arrive, then prove the worker is still fine
	close(eng.block)

	out, err := b.Recognize(context.Background(), []float32{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, out)
}

func TestCloseFailsQueuedRequests(t *testing.T) {
	eng := &stubEngine{
		entered: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	b := New(eng)
	require.NoError(t, b.Start())

	firstOut := make(chan []float32, 1)
	firstErr := make(chan error, 1)
	go func() {
		out, err := b.Recognize(context.Background(), []float32{10})
		firstOut <- out
		firstErr <- err
	}()
	<-eng.entered // first request occupies the worker

	secondErr := make(chan error, 1)
	go func() {
		_, err := b.Recognize(context.Background(), []float32{20})
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond) // second request is queued

	closeDone := make(chan error, 1)
	go func() { closeDone <- b.Close() }()
	time.Sleep(50 * time.Millisecond)
	close(eng.block) // release the worker so Close can finish

	// The request the worker was handling still gets its reply, the
	// queued one is failed.
	require.NoError(t, <-firstErr)
	assert.Equal(t, []float32{11}, <-firstOut)
	assert.ErrorIs(t, <-secondErr, ErrNoWorker)
	assert.NoError(t, <-closeDone)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New(&stubEngine{})
	require.NoError(t, b.Start())

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())

	err := b.LoadModel(context.Background())
	assert.ErrorIs(t, err, ErrNoWorker)

	assert.ErrorIs(t, b.Start(), ErrNoWorker)
}

func TestCloseWithoutStart(t *testing.T) {
	b := New(&stubEngine{})
	assert.NoError(t, b.Close())
}
