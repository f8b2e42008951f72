package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"personabot/internal/domain"
	"personabot/internal/memory"
	"personabot/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandard_EchoScenario(t *testing.T) {
	store := memory.NewInMemoryStore()
	h := newHarness(store, echoRoute(store))

	spy := h.process(sternInput("How can I improve margins?"))

	require.Len(t, spy.sent, 1)
	assert.True(t, strings.HasPrefix(spy.sent[0], "ECHO:"))
	assert.Contains(t, spy.sent[0], "How can I improve margins?")
	assert.Empty(t, spy.errs)

	all := store.All("stern_u1")
	require.Len(t, all, 2)
	assert.Equal(t, domain.GeneratorExternal, all[0].Generator)
	assert.Equal(t, domain.GeneratorAgent, all[1].Generator)

	var persisted domain.InputObject
	require.NoError(t, json.Unmarshal([]byte(all[0].Content), &persisted))
	assert.Equal(t, sternInput("How can I improve margins?"), persisted)
}

func TestStandard_EmptyTextIsRejected(t *testing.T) {
	store := memory.NewInMemoryStore()
	h := newHarness(store, echoRoute(store))

	spy := h.process(sternInput(""))

	assert.Empty(t, spy.sent)
	require.Len(t, spy.errs, 1)
	assert.Contains(t, spy.errs[0].Error(), "valid")
	assert.Empty(t, store.All("stern_u1"))
}

func TestStandard_NoRoutes(t *testing.T) {
	store := memory.NewInMemoryStore()
	h := newHarness(store)

	spy := h.process(sternInput("hello"))

	assert.Empty(t, spy.sent)
	require.Len(t, spy.errs, 1)
	assert.ErrorIs(t, spy.errs[0], pipeline.ErrNoRoute)
	assert.Contains(t, spy.errs[0].Error(), "no matching route")
}

func TestStandard_SameInputTwiceMakesTwoRecords(t *testing.T) {
	store := memory.NewInMemoryStore()
	h := newHarness(store)

	h.process(sternInput("again"))
	h.process(sternInput("again"))

	all := store.All("stern_u1")
	require.Len(t, all, 2)
	assert.NotEqual(t, all[0].ID, all[1].ID)
	assert.Equal(t, all[0].Content, all[1].Content)
}

func TestStandard_ContextExcludesCurrentInputMemory(t *testing.T) {
	store := memory.NewInMemoryStore()
	var captured *pipeline.Context
	var memCount int
	capture := pipeline.Route{
		Name: "conversation",
		Handler: func(ctx context.Context, c *pipeline.Context, req *pipeline.Request, res *pipeline.Response) error {
			captured = c
			memCount = len(req.Memories)
			return res.Send(ctx, "ok")
		},
	}
	h := newHarness(store, capture)

	h.process(sternInput("first"))
	require.NotNil(t, captured)
	assert.Zero(t, memCount)
	assert.Equal(t, 1, strings.Count(captured.Transcript(), "first"))

	h.process(sternInput("second"))
	assert.Equal(t, 1, memCount)
	assert.Equal(t, "first", captured.History[0].Text)
	assert.Equal(t, 1, strings.Count(captured.Transcript(), "second"))
}

func TestStandard_CreateMemoryFailure(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore(), failInsert: true}
	called := false
	route := pipeline.Route{
		Name: "conversation",
		Handler: func(ctx context.Context, c *pipeline.Context, req *pipeline.Request, res *pipeline.Response) error {
			called = true
			return nil
		},
	}
	h := newHarness(store, route)

	spy := h.process(sternInput("hello"))

	assert.False(t, called)
	require.Len(t, spy.errs, 1)
	assert.Equal(t, "createMemory", pipeline.StageOf(spy.errs[0]))
	assert.Contains(t, spy.errs[0].Error(), "failed to create memory")
}

func TestStandard_LoadMemoriesFailure(t *testing.T) {
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore(), failQuery: true}
	h := newHarness(store, echoRoute(store))

	spy := h.process(sternInput("hello"))

	assert.Empty(t, spy.sent)
	require.Len(t, spy.errs, 1)
	assert.Equal(t, "loadMemories", pipeline.StageOf(spy.errs[0]))
	// the input record was written before loading failed
	assert.Len(t, store.All("stern_u1"), 1)
}

func TestStandard_ConcurrentRunsSameRoom(t *testing.T) {
	store := memory.NewInMemoryStore()
	h := newHarness(store, echoRoute(store))

	var wg sync.WaitGroup
	spies := make([]*spyResponder, 8)
	for i := range spies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spies[i] = h.process(sternInput(fmt.Sprintf("msg %d", i)))
		}(i)
	}
	wg.Wait()

	for _, s := range spies {
		assert.Len(t, s.sent, 1)
		assert.Empty(t, s.errs)
	}
	// every input and every reply is persisted; what each run saw of its
	// neighbours depends on commit order
	assert.Len(t, store.All("stern_u1"), 16)
}
