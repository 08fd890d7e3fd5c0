package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestResolve_CanonicalRef(t *testing.T) {
	r := NewResolver(mapLookup(map[string]string{
		"OPENAI_API_KEY": "sk-direct",
	}))

	secret, ok := r.Resolve("OPENAI_API_KEY")
	assert.True(t, ok)
	assert.Equal(t, "sk-direct", secret)
}

func TestResolve_SynthesizedRef(t *testing.T) {
	r := NewResolver(mapLookup(map[string]string{
		"OPENAI_API_KEY":       "sk-openai",
		"MY_BACKUP_API_KEY":    "sk-backup",
		"GEMINI_FLASH_API_KEY": "sk-flash",
	}))

	secret, ok := r.Resolve("openai")
	assert.True(t, ok)
	assert.Equal(t, "sk-openai", secret)

	secret, ok = r.Resolve("my-backup")
	assert.True(t, ok)
	assert.Equal(t, "sk-backup", secret)

	secret, ok = r.Resolve("gemini.flash")
	assert.True(t, ok)
	assert.Equal(t, "sk-flash", secret)
}

func TestResolve_Unresolved(t *testing.T) {
	r := NewResolver(mapLookup(map[string]string{
		"EMPTY_API_KEY": "",
	}))

	_, ok := r.Resolve("missing")
	assert.False(t, ok)

	_, ok = r.Resolve("")
	assert.False(t, ok)

	// empty value counts as unresolved
	_, ok = r.Resolve("empty")
	assert.False(t, ok)
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", Canonical("openai"))
	assert.Equal(t, "CLAUDE_3_API_KEY", Canonical("claude-3"))
	assert.Equal(t, "GPT4_API_KEY", Canonical("gpt4"))
}
