package conversation

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultSystemPrompt is the doctor persona. {{.Language}} is replaced with the
// language detected on the first turn of the conversation.
const DefaultSystemPrompt = `You have to act as a professional doctor and give your response as such, I know you are not but this is for learning purpose.
With what you see or hear, try to give your best possible medical opinion.
Do you find anything wrong medically? If you make a differential, suggest some remedies for them.
Do not add any numbers or special characters in your response.

Try to give names of a few possible diseases, illnesses, or conditions that it could be,
but always clarify that this is not a confirmed diagnosis.

If relevant, suggest simple over-the-counter medicines or herbal remedies, but always advise the patient to consult a real doctor before taking any medicine.

Offer preventive measures, precautions, mild treatments, or lifestyle changes if possible.
If there is a risk of emergency, advise immediate medical attention and give first-aid advice if needed.
If mental health issues are suspected, provide supportive advice and encourage them to seek professional help.

Respond in such a way that a normal person can understand.
Keep your response in one long paragraph.
Always answer as if you are speaking directly to a patient.

If an image is provided, do not say 'In the image I see' but instead respond in a way that a doctor would, like 'Based on the symptoms and visual information provided'.
Do not respond as an AI model or use markdown formatting.
Your answer should mimic that of an actual doctor, empathetic and clear.
Keep your answer concise, direct, and helpful, without preambles and prioritise preventive measures and lifestyle changes.
Now, respond in the same language as the patient's query, which is detected as: {{.Language}}.
`

// referenceLabel prefixes retrieved passages merged into the system message.
const referenceLabel = "\n\n(Reference for you, not to be shown to patient): "

// Prompt renders the system message for a conversation.
type Prompt struct {
	tmpl            *template.Template
	defaultLanguage string
}

// NewPrompt parses a system prompt template. An empty text uses DefaultSystemPrompt.
// defaultLanguage replaces an empty language tag; it falls back to "en".
func NewPrompt(text, defaultLanguage string) (*Prompt, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultSystemPrompt
	}
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	tmpl, err := template.New("system").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing system prompt: %w", err)
	}
	p := &Prompt{tmpl: tmpl, defaultLanguage: defaultLanguage}
	if _, err := p.render(defaultLanguage); err != nil {
		return nil, fmt.Errorf("rendering system prompt: %w", err)
	}
	return p, nil
}

// MustPrompt is NewPrompt for the built-in template; it panics on error.
func MustPrompt(defaultLanguage string) *Prompt {
	p, err := NewPrompt("", defaultLanguage)
	if err != nil {
		panic(err)
	}
	return p
}

// Render returns the system message for language. The template was executed
// once at construction, so execution cannot fail for a different tag.
func (p *Prompt) Render(language string) string {
	if language == "" {
		language = p.defaultLanguage
	}
	out, err := p.render(language)
	if err != nil {
		return strings.ReplaceAll(DefaultSystemPrompt, "{{.Language}}", language)
	}
	return out
}

func (p *Prompt) render(language string) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, struct{ Language string }{Language: language}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
