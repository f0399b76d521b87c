package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-rag/internal/models"
)

func chunks(texts ...string) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, len(texts))
	for i, t := range texts {
		out[i] = models.RetrievedChunk{Chunk: models.Chunk{Content: t, PageNumber: i + 1, ChunkID: 1}}
	}
	return out
}

func TestBuild(t *testing.T) {
	got, err := Build("C:\n{context}\nQ: {question}", chunks("Education: IIT Mandi", "Skills: Go"), "What is your GPA?")
	require.NoError(t, err)
	assert.Equal(t, "C:\nEducation: IIT Mandi\n\nSkills: Go\nQ: What is your GPA?", got)
}

func TestBuild_QuestionVerbatim(t *testing.T) {
	question := "  What's in {context} or {{braces}}?\n"
	got, err := Build("{context}|{question}", chunks("a {question} b"), question)
	require.NoError(t, err)
	assert.Equal(t, "a {question} b|"+question, got)
}

func TestBuild_NoChunks(t *testing.T) {
	got, err := Build("[{context}] {question}", nil, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "[] Hi", got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{name: "both", template: "{context} {question}"},
		{name: "missing context", template: "Question: {question}", wantErr: true},
		{name: "missing question", template: "Context: {context}", wantErr: true},
		{name: "none", template: "plain text", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.template)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrTemplate)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewBuilder(t *testing.T) {
	_, err := NewBuilder("no placeholders")
	assert.ErrorIs(t, err, models.ErrTemplate)

	_, err = Build("only {question}", chunks("x"), "q")
	assert.ErrorIs(t, err, models.ErrTemplate)

	for _, tmpl := range []string{
		"Profile {name}\n{context}\n{question}",
		"{name} {context} {question}",
		"{context} {question} }",
	} {
		_, err = NewBuilder(tmpl)
		assert.ErrorIs(t, err, models.ErrTemplate, tmpl)
	}

	b, err := NewBuilder(models.ResumePrompt("Jane Doe"))
	require.NoError(t, err)
	got, err := b.Build(chunks("Education: IIT Mandi, CGPA 8.5"), "What is your GPA?")
	require.NoError(t, err)
	assert.Contains(t, got, "Jane Doe")
	assert.Contains(t, got, "Resume Context:\nEducation: IIT Mandi, CGPA 8.5\n\nQuestion:\nWhat is your GPA?\n\nAnswer:")
	assert.Contains(t, got, models.FallbackAnswer)
	assert.False(t, strings.Contains(got, "{context}"))
}

func TestResumePrompt_DefaultSubject(t *testing.T) {
	tmpl := models.ResumePrompt("")
	assert.NoError(t, Validate(tmpl))
	assert.Contains(t, tmpl, models.DefaultSubject)
	assert.Contains(t, tmpl, "first person")
}
