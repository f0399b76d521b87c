// Package prompt renders the instruction template with retrieved résumé chunks and the
// user's question.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"resume-rag/internal/models"
)

var placeholders = []string{"{" + models.ContextVariable + "}", "{" + models.QuestionVariable + "}"}

// Validate checks that template has both the {context} and {question} placeholders and
// renders cleanly, so unknown placeholders or stray braces fail at startup.
func Validate(template string) error {
	var missing []string
	for _, p := range placeholders {
		if !strings.Contains(template, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing placeholder %s", models.ErrTemplate, strings.Join(missing, ", "))
	}
	_, err := render(template, "context", "question")
	return err
}

// Build substitutes the chunk texts, joined by a blank line in retrieval order, and the
// question verbatim.
func Build(template string, chunks []models.RetrievedChunk, question string) (string, error) {
	if err := Validate(template); err != nil {
		return "", err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return render(template, strings.Join(texts, models.ContextSeparator), question)
}

func render(template, context, question string) (string, error) {
	tmpl := prompts.PromptTemplate{
		Template:       template,
		TemplateFormat: prompts.TemplateFormatFString,
		InputVariables: []string{models.ContextVariable, models.QuestionVariable},
	}
	out, err := tmpl.Format(map[string]any{
		models.ContextVariable:  context,
		models.QuestionVariable: question,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTemplate, err)
	}
	return out, nil
}

// Builder holds a template that was validated once at startup.
type Builder struct {
	template string
}

func NewBuilder(template string) (*Builder, error) {
	if err := Validate(template); err != nil {
		return nil, err
	}
	return &Builder{template: template}, nil
}

func (b *Builder) Template() string {
	return b.template
}

func (b *Builder) Build(chunks []models.RetrievedChunk, question string) (string, error) {
	return Build(b.template, chunks, question)
}
