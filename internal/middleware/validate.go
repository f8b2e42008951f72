package middleware

import (
	"context"
	"strings"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

// ValidateInput rejects inputs missing identity fields or, for text inputs,
// the text itself. Rejected inputs never reach later stages.
func ValidateInput() pipeline.Middleware {
	return func(ctx context.Context, req *pipeline.Request, res *pipeline.Response, next pipeline.Next) error {
		if err := validate(req.Input); err != nil {
			return err
		}
		next(ctx)
		return nil
	}
}

func validate(in domain.InputObject) error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return &pipeline.ValidationError{Field: "userId", Reason: "is required"}
	case strings.TrimSpace(in.AgentID) == "":
		return &pipeline.ValidationError{Field: "agentId", Reason: "is required"}
	case strings.TrimSpace(in.RoomID) == "":
		return &pipeline.ValidationError{Field: "roomId", Reason: "is required"}
	}

	switch in.Type {
	case "", domain.TypeText:
		if strings.TrimSpace(in.Text) == "" {
			return &pipeline.ValidationError{Field: "text", Reason: "is required for text input"}
		}
	case domain.TypeImage:
		if len(in.ImageURLs) == 0 && strings.TrimSpace(in.Text) == "" {
			return &pipeline.ValidationError{Field: "imageUrls", Reason: "is required for image input"}
		}
	default:
		return &pipeline.ValidationError{Field: "type", Reason: "is not supported"}
	}
	return nil
}
