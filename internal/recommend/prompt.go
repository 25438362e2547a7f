package recommend

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultRecommendPrompt asks for three online activities about an interest.
const DefaultRecommendPrompt = "Recommend 3 online activities about {{.Interest}}. Requirements:\n" +
	"- Include activity name, description, time, and participation link\n" +
	"- Output in Chinese list format"

// Prompt renders the fixed recommendation prompt around a user interest.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses text; an empty text selects DefaultRecommendPrompt.
func NewPrompt(text string) (*Prompt, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultRecommendPrompt
	}
	t, err := template.New("recommend").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("generation: parse recommend_prompt: %w", err)
	}
	return &Prompt{tmpl: t}, nil
}

// Render embeds interest into the prompt.
func (p *Prompt) Render(interest string) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, struct{ Interest string }{Interest: interest}); err != nil {
		return "", fmt.Errorf("generation: render prompt: %w", err)
	}
	return b.String(), nil
}
