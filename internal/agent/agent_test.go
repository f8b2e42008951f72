package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"personabot/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgent_AddRouteAndLookup(t *testing.T) {
	a := New(Stern)
	require.NoError(t, a.AddRoute(noopRoute("conversation")))
	require.NoError(t, a.AddRoute(noopRoute("business_advice")))

	r, ok := a.Route("business_advice")
	require.True(t, ok)
	assert.Equal(t, "business_advice", r.Name)

	_, ok = a.Route("missing")
	assert.False(t, ok)

	names := []string{}
	for _, r := range a.Routes() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"conversation", "business_advice"}, names)
}

func TestAgent_AddRouteReplacesSameName(t *testing.T) {
	a := New(Stern, WithRoutes(noopRoute("conversation")))
	replacement := noopRoute("conversation")
	replacement.Description = "replaced"
	require.NoError(t, a.AddRoute(replacement))

	routes := a.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "replaced", routes[0].Description)
}

func TestAgent_AddRouteValidation(t *testing.T) {
	a := New(Stern)
	assert.Error(t, a.AddRoute(pipeline.Route{Handler: noopRoute("x").Handler}))
	assert.Error(t, a.AddRoute(pipeline.Route{Name: "x"}))
	assert.Empty(t, a.Routes())
}

func TestAgent_InvalidConstructionRouteIsReported(t *testing.T) {
	a := New(Stern, WithRoutes(noopRoute("conversation"), pipeline.Route{Name: "broken"}))
	require.Error(t, a.Err())
	assert.Contains(t, a.Err().Error(), `"broken"`)
	assert.Len(t, a.Routes(), 1)

	err := NewRegistry().Register(a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no handler")
}

func TestAgent_RoutesSnapshotIsIsolated(t *testing.T) {
	a := New(Stern, WithRoutes(noopRoute("conversation")))
	snap := a.Routes()
	require.NoError(t, a.AddRoute(noopRoute("echo")))

	assert.Len(t, snap, 1)
	assert.Len(t, a.Routes(), 2)
}

func TestAgent_ConcurrentAddAndSelect(t *testing.T) {
	a := New(Stern, WithRoutes(noopRoute("conversation")))
	c := &pipeline.Context{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = a.AddRoute(noopRoute(fmt.Sprintf("r%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			name, err := a.Select(context.Background(), c)
			assert.NoError(t, err)
			assert.Equal(t, "conversation", name)
		}()
	}
	wg.Wait()
	assert.Len(t, a.Routes(), 21)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(New(Stern)))
	assert.Error(t, reg.Register(New(Stern)), "duplicate id")

	other := Stern
	other.AgentID = "alpha"
	require.NoError(t, reg.Register(New(other)))

	got, err := reg.Get("stern")
	require.NoError(t, err)
	assert.Equal(t, "Stern", got.Name())

	_, err = reg.Get("nobody")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].ID())
}
