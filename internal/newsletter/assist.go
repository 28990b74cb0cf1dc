package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/parteiportal/backend/internal/apperror"
)

const opAssist = "newsletter.assist"

var (
	// ErrAssistDisabled marks a portal running without a configured model key.
	ErrAssistDisabled = errors.New("newsletter: content generation not configured")

	msgAssistDisabled = "KI-Unterstützung ist nicht konfiguriert."
	msgAssistFailed   = "Der Entwurf konnte nicht erstellt werden."
)

// DraftRequest describes what the editor wants the model to write.
type DraftRequest struct {
	Points   []string
	Tone     string
	Audience string
}

// Draft is a generated subject/body pair.
type Draft struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}

// ContentGenerator produces newsletter drafts from bullet points.
type ContentGenerator interface {
	GenerateDraft(ctx context.Context, request DraftRequest) (Draft, error)
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator constructs a Gemini-backed ContentGenerator. An empty API
// key returns ErrAssistDisabled so callers can expose a disabled endpoint.
func NewGenAIGenerator(ctx context.Context, apiKey, model string) (ContentGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAssistDisabled
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("newsletter: create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &genaiGenerator{client: client, model: model}, nil
}

const assistPromptTemplate = `Du schreibst den Newsletter eines politischen Ortsverbands.
Verfasse aus den folgenden Stichpunkten einen Betreff und einen HTML-Textkörper.
Tonfall: %s. Zielgruppe: %s.
Antworte ausschließlich mit einem JSON-Objekt der Form {"subject": "...", "body_html": "..."}.

Stichpunkte:
%s`

func (g *genaiGenerator) GenerateDraft(ctx context.Context, request DraftRequest) (Draft, error) {
	if len(request.Points) == 0 {
		return Draft{}, apperror.New(apperror.KindInvalid, opAssist+".missing_points", "Es wurden keine Stichpunkte übergeben.", nil)
	}
	tone := request.Tone
	if tone == "" {
		tone = "freundlich und sachlich"
	}
	audience := request.Audience
	if audience == "" {
		audience = "Mitglieder des Ortsverbands"
	}
	prompt := fmt.Sprintf(assistPromptTemplate, tone, audience, "- "+strings.Join(request.Points, "\n- "))

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Draft{}, apperror.New(apperror.KindUnavailable, opAssist+".model_failed", msgAssistFailed, err)
	}

	draft, err := parseDraft(response.Text())
	if err != nil {
		return Draft{}, apperror.New(apperror.KindUnavailable, opAssist+".bad_model_output", msgAssistFailed, err)
	}
	return draft, nil
}

func parseDraft(raw string) (Draft, error) {
	trimmed := strings.TrimSpace(raw)
	// Models occasionally wrap JSON in a fenced code block.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var draft Draft
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &draft); err != nil {
		return Draft{}, err
	}
	if strings.TrimSpace(draft.Subject) == "" || strings.TrimSpace(draft.BodyHTML) == "" {
		return Draft{}, errors.New("newsletter: model produced an incomplete draft")
	}
	return draft, nil
}
