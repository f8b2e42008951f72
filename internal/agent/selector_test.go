package agent

import (
	"context"
	"errors"
	"testing"

	"personabot/internal/domain"
	"personabot/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctxFor(text string) *pipeline.Context {
	return &pipeline.Context{Input: domain.InputObject{UserID: "u1", Text: text}}
}

func TestDefaultSelector(t *testing.T) {
	ctx := context.Background()

	name, err := DefaultSelector(ctx, ctxFor("hi"), nil)
	require.NoError(t, err)
	assert.Empty(t, name)

	name, _ = DefaultSelector(ctx, ctxFor("hi"), []pipeline.Route{noopRoute("echo")})
	assert.Equal(t, "echo", name)

	name, _ = DefaultSelector(ctx, ctxFor("hi"), []pipeline.Route{noopRoute("echo"), noopRoute("conversation")})
	assert.Equal(t, "conversation", name)

	name, _ = DefaultSelector(ctx, ctxFor("hi"), []pipeline.Route{noopRoute("echo"), noopRoute("other")})
	assert.Empty(t, name)
}

func TestKeywordSelector(t *testing.T) {
	routes := []pipeline.Route{noopRoute("conversation"), noopRoute("business_advice"), noopRoute("weather")}
	sel := KeywordSelector(map[string][]string{
		"business_advice": {"Strategy", "margin"},
		"weather":         {"rain", "forecast"},
	}, nil, quietLogger())

	tests := []struct {
		text string
		want string
	}{
		{"What STRATEGY fixes my margin?", "business_advice"},
		{"will it rain tomorrow", "weather"},
		{"hello there", "conversation"},
		{"rain strategy", "conversation"}, // tie
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := sel(context.Background(), ctxFor(tt.text), routes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMSelector(t *testing.T) {
	routes := []pipeline.Route{noopRoute("conversation"), noopRoute("business_advice")}

	t.Run("valid choice", func(t *testing.T) {
		llm := &fakeLLM{answer: `{"route":"business_advice"}`}
		got, err := LLMSelector(llm, nil, quietLogger())(context.Background(), ctxFor("help"), routes)
		require.NoError(t, err)
		assert.Equal(t, "business_advice", got)
		assert.Equal(t, 1, llm.calls)
	})

	t.Run("unknown choice falls back", func(t *testing.T) {
		llm := &fakeLLM{answer: `{"route":"made_up"}`}
		got, err := LLMSelector(llm, nil, quietLogger())(context.Background(), ctxFor("help"), routes)
		require.NoError(t, err)
		assert.Equal(t, "conversation", got)
	})

	t.Run("generation failure falls back", func(t *testing.T) {
		llm := &fakeLLM{err: errors.New("boom")}
		got, err := LLMSelector(llm, nil, quietLogger())(context.Background(), ctxFor("help"), routes)
		require.NoError(t, err)
		assert.Equal(t, "conversation", got)
	})

	t.Run("single route skips llm", func(t *testing.T) {
		llm := &fakeLLM{}
		got, err := LLMSelector(llm, nil, quietLogger())(context.Background(), ctxFor("help"), routes[:1])
		require.NoError(t, err)
		assert.Equal(t, "conversation", got)
		assert.Zero(t, llm.calls)
	})
}

func TestSelectorFor(t *testing.T) {
	for _, s := range []string{"", "default", "keyword"} {
		sel, err := SelectorFor(s, Stern, nil, quietLogger())
		require.NoError(t, err, s)
		assert.NotNil(t, sel)
	}
	_, err := SelectorFor("llm", Stern, nil, quietLogger())
	assert.Error(t, err)
	_, err = SelectorFor("llm", Stern, &fakeLLM{}, quietLogger())
	assert.NoError(t, err)
	_, err = SelectorFor("dice", Stern, nil, quietLogger())
	assert.Error(t, err)
}
