package credentials

import (
	"os"
	"strings"
)

// LookupFunc resolves a variable name to a secret. os.LookupEnv is the
// production binding; tests inject a map-backed one.
type LookupFunc func(name string) (string, bool)

// Resolver turns credential references from model configuration into usable
// secrets. Resolution is pure: it only consults the injected lookup.
type Resolver struct {
	lookup LookupFunc
}

func NewResolver(lookup LookupFunc) *Resolver {
	return &Resolver{lookup: lookup}
}

// Env returns a resolver backed by the process environment.
func Env() *Resolver {
	return NewResolver(os.LookupEnv)
}

// Resolve resolves ref to a secret. A ref that already is a canonical
// variable name (uppercase letters, digits, underscores) is looked up
// directly; anything else is folded into the canonical form
// UPPER(ref)_API_KEY first. A secret that resolves to the empty string
// counts as unresolved.
func (r *Resolver) Resolve(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	if isCanonical(ref) {
		if v, ok := r.lookup(ref); ok && v != "" {
			return v, true
		}
		return "", false
	}
	if v, ok := r.lookup(Canonical(ref)); ok && v != "" {
		return v, true
	}
	return "", false
}

// Canonical synthesizes the environment-variable name for a short reference:
// non-alphanumerics fold to underscores, the result is uppercased and given
// the _API_KEY suffix. "openai" becomes "OPENAI_API_KEY".
func Canonical(ref string) string {
	var b strings.Builder
	for _, c := range ref {
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteRune(c - 'a' + 'A')
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + "_API_KEY"
}

func isCanonical(ref string) bool {
	for i, c := range ref {
		switch {
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
