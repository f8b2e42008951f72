package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_RunsMiddlewareInOrder(t *testing.T) {
	var order []int
	stage := func(n int) Middleware {
		return func(ctx context.Context, req *Request, res *Response, next Next) error {
			order = append(order, n)
			next(ctx)
			return nil
		}
	}

	e := NewEngine(EngineConfig{Logger: quietLogger()})
	e.Use(stage(1), stage(2)).Use(stage(3))

	e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, &spyResponder{})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestProcess_OmittingNextStopsSilently(t *testing.T) {
	reached := false
	e := NewEngine(EngineConfig{Logger: quietLogger()})
	e.Use(
		func(ctx context.Context, req *Request, res *Response, next Next) error { return nil },
		func(ctx context.Context, req *Request, res *Response, next Next) error {
			reached = true
			return nil
		},
	)

	spy := &spyResponder{}
	e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, spy)

	assert.False(t, reached)
	sent, errs := spy.counts()
	assert.Zero(t, sent)
	assert.Zero(t, errs)
}

func TestProcess_ErrorStopsChainAndReachesResponder(t *testing.T) {
	boom := errors.New("boom")
	reached := false

	e := NewEngine(EngineConfig{Logger: quietLogger()})
	e.Use(
		func(ctx context.Context, req *Request, res *Response, next Next) error { return boom },
		func(ctx context.Context, req *Request, res *Response, next Next) error {
			reached = true
			return nil
		},
	)

	spy := &spyResponder{}
	e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, spy)

	assert.False(t, reached)
	require.Len(t, spy.errs, 1)
	assert.ErrorIs(t, spy.errs[0], boom)
	assert.Empty(t, spy.sent)
}

func TestProcess_DownstreamErrorHandledOnce(t *testing.T) {
	boom := errors.New("boom")
	var handled atomic.Int32

	e := NewEngine(EngineConfig{Logger: quietLogger()})
	e.Use(
		func(ctx context.Context, req *Request, res *Response, next Next) error {
			next(ctx)
			return nil
		},
		func(ctx context.Context, req *Request, res *Response, next Next) error { return boom },
	)
	e.OnError(func(ctx context.Context, err error, req *Request, res *Response) error {
		handled.Add(1)
		return nil
	})

	spy := &spyResponder{}
	e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, spy)

	assert.Equal(t, int32(1), handled.Load())
	_, errs := spy.counts()
	assert.Equal(t, 1, errs)
}

func TestProcess_PanicBecomesError(t *testing.T) {
	e := NewEngine(EngineConfig{Logger: quietLogger()})
	e.Use(func(ctx context.Context, req *Request, res *Response, next Next) error {
		panic("handler exploded")
	})

	spy := &spyResponder{}
	e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, spy)

	require.Len(t, spy.errs, 1)
	assert.Contains(t, spy.errs[0].Error(), "handler exploded")
}

func TestProcess_ErrorHandlersIsolated(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		calls = append(calls, name)
		mu.Unlock()
	}

	e := NewEngine(EngineConfig{Logger: quietLogger()})
	e.Use(func(ctx context.Context, req *Request, res *Response, next Next) error {
		return errors.New("fail")
	})
	e.OnError(
		func(ctx context.Context, err error, req *Request, res *Response) error {
			record("first")
			return errors.New("handler failed")
		},
		func(ctx context.Context, err error, req *Request, res *Response) error {
			record("second")
			panic("handler panicked")
		},
		func(ctx context.Context, err error, req *Request, res *Response) error {
			record("third")
			return nil
		},
	)

	e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, &spyResponder{})

	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestProcess_NilResponderFallsBackToLogging(t *testing.T) {
	e := NewEngine(EngineConfig{Logger: quietLogger()})
	var sendErr error
	e.Use(func(ctx context.Context, req *Request, res *Response, next Next) error {
		sendErr = res.Send(ctx, "hello")
		return nil
	})

	e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, nil)

	assert.NoError(t, sendErr)
}

func TestProcess_CancelledContextReportsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(EngineConfig{Logger: quietLogger()})
	reached := false
	e.Use(func(ctx context.Context, req *Request, res *Response, next Next) error {
		reached = true
		return nil
	})

	spy := &spyResponder{}
	e.Process(ctx, textInput("hi"), &stubAgent{id: "stern"}, spy)

	assert.False(t, reached)
	require.Len(t, spy.errs, 1)
	assert.ErrorIs(t, spy.errs[0], context.Canceled)
}

func TestUse_ConcurrentWithProcess(t *testing.T) {
	e := NewEngine(EngineConfig{Logger: quietLogger()})
	pass := func(ctx context.Context, req *Request, res *Response, next Next) error {
		next(ctx)
		return nil
	}
	e.Use(pass)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Use(pass)
		}()
		go func() {
			defer wg.Done()
			e.Process(context.Background(), textInput("hi"), &stubAgent{id: "stern"}, &spyResponder{})
		}()
	}
	wg.Wait()
}
