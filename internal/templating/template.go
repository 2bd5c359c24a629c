// Package templating implements filename templates for object key derivation.
//
// A template is a string with variable references of the form
// {{ name }} or {{ name:param=value }}, for example:
//
//	{{topic}}-{{partition}}-{{start_offset:padding=true}}
//
// Templates are parsed once at configuration time; unknown variables and
// malformed references surface as a TemplateError at start, never per record.
package templating

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jittakal/kafs3sink/internal/errors"
)

// Parameter is an optional key=value modifier attached to a template variable.
type Parameter struct {
	Name  string
	Value string
}

// Empty is the zero parameter, bound when a variable carries no modifier.
var Empty = Parameter{}

// IsEmpty returns true if no parameter was given.
func (p Parameter) IsEmpty() bool {
	return p.Name == ""
}

// BoolValue interprets the parameter value as a boolean flag.
func (p Parameter) BoolValue() bool {
	return p.Value == "true"
}

// Evaluator produces the rendered value for one variable occurrence.
type Evaluator func(p Parameter) string

// Binding maps variable names to their evaluation functions. Evaluation is
// eager: every variable is resolved at render time.
type Binding map[string]Evaluator

// part is one parsed segment of a template: literal text or a variable call.
type part struct {
	text  string
	name  string
	param Parameter
	isVar bool
}

// Template is a parsed filename template.
type Template struct {
	source string
	parts  []part
}

// Parse parses a template string. An empty source yields a template that
// renders to the empty string.
func Parse(source string) (*Template, error) {
	t := &Template{source: source}
	rest := source
	for len(rest) > 0 {
		open := strings.Index(rest, "{{")
		if open < 0 {
			if strings.Contains(rest, "}}") {
				return nil, &errors.TemplateError{Template: source, Reason: "unmatched }}"}
			}
			t.parts = append(t.parts, part{text: rest})
			break
		}
		if open > 0 {
			t.parts = append(t.parts, part{text: rest[:open]})
		}
		rest = rest[open+2:]
		clos := strings.Index(rest, "}}")
		if clos < 0 {
			return nil, &errors.TemplateError{Template: source, Reason: "unmatched {{"}
		}
		ref := strings.TrimSpace(rest[:clos])
		rest = rest[clos+2:]

		v, err := parseVariable(source, ref)
		if err != nil {
			return nil, err
		}
		t.parts = append(t.parts, v)
	}
	return t, nil
}

func parseVariable(source, ref string) (part, error) {
	if ref == "" {
		return part{}, &errors.TemplateError{Template: source, Reason: "empty variable reference"}
	}
	name := ref
	param := Empty
	if colon := strings.Index(ref, ":"); colon >= 0 {
		name = strings.TrimSpace(ref[:colon])
		kv := strings.TrimSpace(ref[colon+1:])
		eq := strings.Index(kv, "=")
		if eq <= 0 || eq == len(kv)-1 {
			return part{}, &errors.TemplateError{
				Template: source,
				Variable: name,
				Reason:   fmt.Sprintf("malformed parameter %q, expected name=value", kv),
			}
		}
		param = Parameter{Name: kv[:eq], Value: kv[eq+1:]}
	}
	if name == "" {
		return part{}, &errors.TemplateError{Template: source, Reason: "empty variable name"}
	}
	return part{name: name, param: param, isVar: true}, nil
}

// Source returns the original template string.
func (t *Template) Source() string {
	return t.source
}

// Variables returns the sorted set of variable names used by the template.
func (t *Template) Variables() []string {
	seen := make(map[string]bool)
	for _, p := range t.parts {
		if p.isVar {
			seen[p.name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VariableCall is one variable occurrence with its parameter.
type VariableCall struct {
	Name  string
	Param Parameter
}

// Calls returns every variable occurrence in source order.
func (t *Template) Calls() []VariableCall {
	var calls []VariableCall
	for _, p := range t.parts {
		if p.isVar {
			calls = append(calls, VariableCall{Name: p.name, Param: p.param})
		}
	}
	return calls
}

// Validate checks every referenced variable against the allowed set.
func (t *Template) Validate(allowed map[string]bool) error {
	for _, name := range t.Variables() {
		if !allowed[name] {
			return &errors.TemplateError{
				Template: t.source,
				Variable: name,
				Reason:   "unknown variable",
			}
		}
	}
	return nil
}

// Render evaluates the template against the binding. Every variable must be
// bound; a missing binding is a TemplateError.
func (t *Template) Render(b Binding) (string, error) {
	var sb strings.Builder
	for _, p := range t.parts {
		if !p.isVar {
			sb.WriteString(p.text)
			continue
		}
		eval, ok := b[p.name]
		if !ok {
			return "", &errors.TemplateError{
				Template: t.source,
				Variable: p.name,
				Reason:   "unbound variable",
			}
		}
		sb.WriteString(eval(p.param))
	}
	return sb.String(), nil
}
