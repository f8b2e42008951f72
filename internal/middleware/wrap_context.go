package middleware

import (
	"context"
	"strings"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// WrapContext flattens loaded memories and the current input into a
// role-tagged pipeline.Context.
func WrapContext() pipeline.Middleware {
	return func(ctx context.Context, req *pipeline.Request, res *pipeline.Response, next pipeline.Next) error {
		req.Context = BuildContext(req.Agent.Character(), req.Memories, req.Input)
		next(ctx)
		return nil
	}
}

// BuildContext is the pure assembly step behind WrapContext.
func BuildContext(character domain.Character, memories []domain.Memory, input domain.InputObject) *pipeline.Context {
	history := make([]pipeline.Segment, 0, len(memories))
	for _, m := range memories {
		seg := pipeline.Segment{
			Role:      pipeline.RoleUser,
			Speaker:   m.UserID,
			Text:      m.Text(),
			Generator: m.Generator,
			At:        m.CreatedAt,
		}
		if m.Generator != domain.GeneratorExternal {
			seg.Role = pipeline.RoleAssistant
			seg.Speaker = character.Name
		}
		history = append(history, seg)
	}
	return &pipeline.Context{
		AgentName: character.Name,
		System:    systemPreamble(character),
		History:   history,
		Input:     input,
	}
}

func systemPreamble(c domain.Character) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(c.System))

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("# ")
		sb.WriteString(title)
		for _, l := range lines {
			sb.WriteString("\n- ")
			sb.WriteString(l)
		}
	}
	section("About "+c.Name, c.Bio)
	section("Background", c.Lore)
	section("Topics", c.Topics)

	style := append(append([]string{}, c.Style.All...), c.Style.Chat...)
	section("Style", style)
	if len(c.Adjectives) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(c.Name + " is " + strings.Join(c.Adjectives, ", ") + ".")
	}
	return sb.String()
}
