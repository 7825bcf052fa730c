// Package parsers implements the per-form-type parser family (spec
// §4.C): a registry of pure functions mapping raw filing bytes to a
// typed partial, plus the key-persons aggregator that reads several
// partials at once.
package parsers

import (
	"sync"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// Parser is the shape every form parser implements: bytes in, a typed
// partial out, never a panic.
type Parser interface {
	Parse(body []byte) (any, error)
}

// ParserFunc adapts a plain function to the Parser interface.
type ParserFunc func(body []byte) (any, error)

func (f ParserFunc) Parse(body []byte) (any, error) { return f(body) }

// Registry dispatches Parse(form_type, bytes) to the parser registered
// for that form type tag. Unknown form types return an unavailable
// partial rather than an error (spec §9 "Plugin-like form parser
// family").
type Registry struct {
	mu      sync.RWMutex
	parsers map[profile.FormType]Parser
}

// NewRegistry builds a registry with the standard modern parser set
// already registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[profile.FormType]Parser)}
	r.Register(profile.Form4, ParserFunc(func(b []byte) (any, error) { return ParseForm4(b) }))
	r.Register(profile.FormSC13D, ParserFunc(func(b []byte) (any, error) { return ParseSC13(b, "SC 13D") }))
	r.Register(profile.FormSC13G, ParserFunc(func(b []byte) (any, error) { return ParseSC13(b, "SC 13G") }))
	r.Register(profile.FormDEF14A, ParserFunc(func(b []byte) (any, error) { return ParseDEF14A(b) }))
	return r
}

// Register adds or replaces the parser for a form type tag.
func (r *Registry) Register(form profile.FormType, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[form] = p
}

// Parse dispatches to the registered parser. Unknown form types yield
// a generic unavailable result rather than an error.
func (r *Registry) Parse(form profile.FormType, body []byte) (any, error) {
	r.mu.RLock()
	p, ok := r.parsers[form]
	r.mu.RUnlock()
	if !ok {
		return profile.PartialBase{Available: false, Warnings: []string{"unsupported form type: " + string(form)}}, nil
	}
	return p.Parse(body)
}
