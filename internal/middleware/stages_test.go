package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"personabot/internal/agent"
	"personabot/internal/domain"
	"personabot/internal/memory"
	"personabot/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := sternInput("hi")

	tests := []struct {
		name  string
		mut   func(*domain.InputObject)
		field string
	}{
		{"ok", func(*domain.InputObject) {}, ""},
		{"missing user", func(in *domain.InputObject) { in.UserID = " " }, "userId"},
		{"missing agent", func(in *domain.InputObject) { in.AgentID = "" }, "agentId"},
		{"missing room", func(in *domain.InputObject) { in.RoomID = "" }, "roomId"},
		{"blank text", func(in *domain.InputObject) { in.Text = "\n\t" }, "text"},
		{"image without urls", func(in *domain.InputObject) { in.Type = domain.TypeImage; in.Text = "" }, "imageUrls"},
		{"image with urls", func(in *domain.InputObject) {
			in.Type = domain.TypeImage
			in.Text = ""
			in.ImageURLs = []string{"https://example.com/a.png"}
		}, ""},
		{"unknown type", func(in *domain.InputObject) { in.Type = "VIDEO" }, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mut(&in)
			err := validate(in)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *pipeline.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestLoadMemories_RespectsLimit(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		_, err := store.Insert(ctx, domain.Memory{
			RoomID:    "r",
			Generator: domain.GeneratorExternal,
			Content:   domain.TextContent(string(rune('a' + i))),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	current, err := store.Insert(ctx, domain.Memory{RoomID: "r", Content: "now", CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)

	req := &pipeline.Request{Input: domain.InputObject{RoomID: "r"}, InputMemoryID: current.ID}
	var nextCalled bool
	err = LoadMemories(store, 3)(ctx, req, nil, func(context.Context) { nextCalled = true })
	require.NoError(t, err)
	assert.True(t, nextCalled)

	require.Len(t, req.Memories, 3)
	texts := []string{req.Memories[0].Text(), req.Memories[1].Text(), req.Memories[2].Text()}
	assert.Equal(t, []string{"c", "d", "e"}, texts)
}

func TestBuildContext(t *testing.T) {
	in := sternInput("and now?")
	inJSON := `{"source":"NETWORK","userId":"u1","agentId":"stern","roomId":"stern_u1","type":"TEXT","text":"earlier question"}`
	memories := []domain.Memory{
		{UserID: "u1", Generator: domain.GeneratorExternal, Content: inJSON},
		{UserID: "u1", Generator: domain.GeneratorLLM, Content: domain.TextContent("earlier answer")},
		{UserID: "u1", Generator: domain.GeneratorAgent, Content: "plain reply"},
	}

	c := BuildContext(agent.Stern, memories, in)

	require.Len(t, c.History, 3)
	assert.Equal(t, pipeline.RoleUser, c.History[0].Role)
	assert.Equal(t, "earlier question", c.History[0].Text)
	assert.Equal(t, pipeline.RoleAssistant, c.History[1].Role)
	assert.Equal(t, "Stern", c.History[1].Speaker)
	assert.Equal(t, "earlier answer", c.History[1].Text)
	assert.Equal(t, "plain reply", c.History[2].Text)

	assert.True(t, strings.HasPrefix(c.System, "You are Stern"))
	assert.Contains(t, c.System, "# About Stern")
	assert.Contains(t, c.System, "Stern is efficient, practical, direct.")

	lines := strings.Split(c.Transcript(), "\n")
	assert.Equal(t, "[user:u1] and now?", lines[len(lines)-1])

	// pure: same inputs give the same output
	assert.Equal(t, c, BuildContext(agent.Stern, memories, in))
}

func TestRouter_UnknownSelectedRoute(t *testing.T) {
	a := agent.New(agent.Stern,
		agent.WithSelector(func(ctx context.Context, c *pipeline.Context, routes []pipeline.Route) (string, error) {
			return "ghost", nil
		}),
	)
	e := pipeline.NewEngine(pipeline.EngineConfig{Logger: quietLogger()})
	e.Use(WrapContext(), Router(quietLogger()))

	spy := &spyResponder{}
	e.Process(context.Background(), sternInput("hi"), a, spy)

	require.Len(t, spy.errs, 1)
	assert.ErrorIs(t, spy.errs[0], pipeline.ErrNoRoute)
}
