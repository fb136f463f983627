package course

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedLoadsEmbeddedProfile(t *testing.T) {
	profile := Seed()

	assert.Equal(t, "imc-woxsen", profile.ID)
	assert.Len(t, profile.SuggestedQuestions, 4)
	assert.Equal(t, "Explain the DAGMAR model.", profile.SuggestedQuestions[0])
	assert.Contains(t, profile.Content, "DAGMAR Model")
	assert.Contains(t, profile.WelcomeLine, "I am Euonia")
	assert.NotEmpty(t, profile.Pedagogy)
}

func TestDecodeRejectsMissingContent(t *testing.T) {
	_, err := Decode(strings.NewReader("id: x\ntitle: y\n"))
	require.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "course.yaml")
	doc := "id: brand-101\ntitle: Brand Management TA\ncontent: |\n  Unit 1: Brand equity\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	profile, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "brand-101", profile.ID)
	assert.Equal(t, "Unit 1: Brand equity\n", profile.Content)
}

func TestSuggestionBounds(t *testing.T) {
	profile := Seed()

	q, ok := profile.Suggestion(2)
	assert.True(t, ok)
	assert.Equal(t, "How does the FCB grid classify products?", q)

	_, ok = profile.Suggestion(len(profile.SuggestedQuestions))
	assert.False(t, ok)
	_, ok = profile.Suggestion(-1)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	custom := Profile{ID: "custom", Title: "Custom", Content: "c"}
	store := NewMemoryStore(custom, Seed())

	assert.Equal(t, "custom", store.Default().ID)
	got, ok := store.FindByID("imc-woxsen")
	require.True(t, ok)
	assert.Equal(t, "Euonia TA", got.Name)

	_, ok = store.FindByID("missing")
	assert.False(t, ok)

	assert.Equal(t, "imc-woxsen", NewMemoryStore().Default().ID)
}
