// Package moderation reviews dossier content with an LLM and removes
// dossiers that violate the workspace content policy.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Yuzori/l-Agence/internal/agency"
	"github.com/Yuzori/l-Agence/internal/logger"
)

const systemPrompt = "You are a content moderator for an internal collaboration workspace. " +
	"Review the submitted post for harassment, doxxing, spam, or illegal content. " +
	"Respond with strict JSON only: {\"verdict\":\"keep\"|\"remove\",\"reason\":\"...\"}."

const (
	VerdictKeep   = "keep"
	VerdictRemove = "remove"
)

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// Reviewer asks the model for a verdict and applies the removal through
// the store's admin delete path.
type Reviewer struct {
	messages AnthropicMessager
	store    agency.API
	// adminName is the roster identity removals are attributed to.
	adminName string
}

func NewReviewerFromEnv(store agency.API, adminName string) (*Reviewer, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &Reviewer{
		messages:  newAnthropicClient(apiKey),
		store:     store,
		adminName: adminName,
	}, nil
}

type verdictPayload struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

func (r *Reviewer) ReviewDossier(ctx context.Context, id int64) (string, string, error) {
	d, err := r.store.GetDossier(id)
	if err != nil {
		return "", "", err
	}

	prompt := fmt.Sprintf("Author: %s\nTitle: %s\n\n%s", d.Author, d.Title, d.Description)
	resp, err := r.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   1024,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", "", fmt.Errorf("moderation request: %w", err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}

	var v verdictPayload
	if err := json.Unmarshal([]byte(stripCodeFences(sb.String())), &v); err != nil {
		return "", "", fmt.Errorf("moderation verdict parse: %w", err)
	}
	switch v.Verdict {
	case VerdictKeep:
		return v.Verdict, v.Reason, nil
	case VerdictRemove:
		logger.Warn("moderation_remove", "dossier", id, "reason", v.Reason)
		if err := r.store.DeleteDossier(id, r.adminName); err != nil {
			return "", "", fmt.Errorf("apply removal: %w", err)
		}
		return v.Verdict, v.Reason, nil
	default:
		return "", "", fmt.Errorf("moderation verdict %q is not keep or remove", v.Verdict)
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
