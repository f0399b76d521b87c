// Package testutil holds deterministic stand-ins for the embedding model and the
// chat-completion provider.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"resume-rag/internal/models"
)

// ResumeVocabulary is the default keyword set used by KeywordEmbedder.
var ResumeVocabulary = []string{"gpa", "education", "project", "skill", "experience", "intern", "golang", "python"}

// KeywordEmbedder maps text to keyword counts plus a constant bias dimension, so
// related texts score higher under cosine similarity and no vector is all zeros.
type KeywordEmbedder struct {
	Vocabulary []string
	Err        error
	calls      atomic.Int64
}

func NewKeywordEmbedder() *KeywordEmbedder {
	return &KeywordEmbedder{Vocabulary: ResumeVocabulary}
}

// Calls returns the number of texts embedded so far.
func (e *KeywordEmbedder) Calls() int {
	return int(e.calls.Load())
}

func (e *KeywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.Vocabulary)+1)
	for i, word := range e.Vocabulary {
		v[i] = float32(strings.Count(lower, word))
	}
	v[len(e.Vocabulary)] = 1
	return v
}

func (e *KeywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	e.calls.Add(int64(len(texts)))
	return out, nil
}

func (e *KeywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	e.calls.Add(1)
	return e.vector(text), nil
}

// StubGenerator answers chat-completion calls with Respond and records the prompts it saw.
type StubGenerator struct {
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (g *StubGenerator) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}

	g.mu.Lock()
	g.prompts = append(g.prompts, prompt.String())
	g.mu.Unlock()

	answer, err := g.Respond(prompt.String())
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer}}}, nil
}

// Prompts returns a copy of every prompt received.
func (g *StubGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

var (
	questionRe = regexp.MustCompile(`(?s)Question:\n(.*)\n\nAnswer:`)
	contextRe  = regexp.MustCompile(`(?s)Resume Context:\n(.*)\n\nQuestion:`)
	cgpaRe     = regexp.MustCompile(`CGPA (\d+(?:\.\d+)?)`)
)

// NewResumeGenerator follows the default instructions for GPA questions and answers
// every other question with the exact fallback sentence.
func NewResumeGenerator() *StubGenerator {
	return &StubGenerator{Respond: func(prompt string) (string, error) {
		q := questionRe.FindStringSubmatch(prompt)
		c := contextRe.FindStringSubmatch(prompt)
		if q == nil || c == nil {
			return models.FallbackAnswer, nil
		}
		if strings.Contains(strings.ToLower(q[1]), "gpa") {
			if m := cgpaRe.FindStringSubmatch(c[1]); m != nil {
				return fmt.Sprintf("I studied at IIT Mandi, where I graduated with a CGPA of %s.", m[1]), nil
			}
		}
		return models.FallbackAnswer, nil
	}}
}

// SampleResume is a two-page plain-text résumé; the form feed separates the pages.
const SampleResume = "Jane Doe\nEducation: IIT Mandi, CGPA 8.5\nB.Tech in Computer Science\n" +
	"\f" +
	"Projects: Resume assistant written in Golang\nSkills: Golang, Python, Docker\n"

// WriteResume writes SampleResume to a temporary .txt file and returns its path.
func WriteResume(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte(SampleResume), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
