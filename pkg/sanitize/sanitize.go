// Package sanitize strips markup from operator-supplied text before it
// enters a stored schema. Labels and descriptions are rendered by
// downstream consumers, so they are treated as untrusted input.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formflow/pkg/form"
)

// Policy wraps a bluemonday policy for schema text.
type Policy struct {
	policy *bluemonday.Policy
}

// Strict returns a policy that removes every HTML element and attribute.
func Strict() *Policy {
	return &Policy{policy: bluemonday.StrictPolicy()}
}

// Clean sanitizes a single string.
func (p *Policy) Clean(value string) string {
	return strings.TrimSpace(p.policy.Sanitize(value))
}

// Field returns a copy of f with label, description, and option labels
// sanitized.
func (p *Policy) Field(f form.Field) form.Field {
	f.Label = p.Clean(f.Label)
	f.Description = p.Clean(f.Description)
	if len(f.Options) > 0 {
		options := make([]form.Option, len(f.Options))
		for i, opt := range f.Options {
			opt.Label = p.Clean(opt.Label)
			options[i] = opt
		}
		f.Options = options
	}
	return f
}

// Form returns a copy of f with name, description, and every field
// sanitized.
func (p *Policy) Form(f form.Form) form.Form {
	f.Name = p.Clean(f.Name)
	f.Description = p.Clean(f.Description)
	if len(f.Fields) > 0 {
		fields := make([]form.Field, len(f.Fields))
		for i, field := range f.Fields {
			fields[i] = p.Field(field)
		}
		f.Fields = fields
	}
	return f
}
