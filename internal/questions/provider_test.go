package questions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmakes/atoz-engine-go/internal/engine/sequence"
)

func validQuestion(id string) sequence.Question {
	return sequence.Question{
		ID:     id,
		Prompt: "What is the capital of France?",
		Options: []sequence.Option{
			{ID: "a", Text: "Paris"},
			{ID: "b", Text: "Lyon"},
		},
		CorrectOptionID: "a",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*sequence.Question)
		wantErr string
	}{
		{"valid", func(*sequence.Question) {}, ""},
		{"missing id", func(q *sequence.Question) { q.ID = "" }, "missing id"},
		{"missing prompt", func(q *sequence.Question) { q.Prompt = "" }, "missing prompt"},
		{"one option", func(q *sequence.Question) { q.Options = q.Options[:1] }, "two options"},
		{"bad correct id", func(q *sequence.Question) { q.CorrectOptionID = "z" }, "not among options"},
		{"duplicate option", func(q *sequence.Question) { q.Options[1].ID = "a" }, "duplicate option"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion("q1")
			tt.mutate(&q)
			err := Validate([]sequence.Question{q})
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	assert.Error(t, Validate(nil))
	assert.Error(t, Validate([]sequence.Question{validQuestion("q1"), validQuestion("q1")}))
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"id": "q1",
			"prompt": "2 + 2?",
			"options": [{"id": "a", "text": "4"}, {"id": "b", "text": "5"}],
			"correctOptionId": "a"
		}
	]`), 0o644))

	pool, err := FileProvider{Path: path}.Questions()
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "q1", pool[0].ID)

	_, err = FileProvider{Path: filepath.Join(t.TempDir(), "missing.json")}.Questions()
	assert.Error(t, err)
}

func TestStaticProvider(t *testing.T) {
	pool, err := StaticProvider{Pool: []sequence.Question{validQuestion("q1")}}.Questions()
	require.NoError(t, err)
	assert.Len(t, pool, 1)

	_, err = StaticProvider{}.Questions()
	assert.Error(t, err)
}
