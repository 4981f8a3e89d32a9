package caseflow

import (
	"maps"
	"strings"
	"text/template"
)

type templateText struct {
	name     string
	template string
	vars     map[string]any
}

// PromptTemplate builds a Prompt from formatted system and user templates.
// It supports fluent chaining, for example:
//
//	prompt, err := NewPromptTemplate().System(sysTmpl).User(userTmpl, params).Build()
//
// Several user templates are joined with a blank line.
type PromptTemplate struct {
	system []*templateText
	user   []*templateText
}

// NewPromptTemplate creates a new PromptTemplate builder.
func NewPromptTemplate() *PromptTemplate {
	return &PromptTemplate{}
}

func mergeParams(params ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, kv := range params {
		maps.Copy(out, kv)
	}
	return out
}

// User appends a user section rendered from the template and params
// (e.g. {{.complaint}}).
func (p *PromptTemplate) User(tmpl string, params ...map[string]any) *PromptTemplate {
	p.user = append(p.user, &templateText{name: "user", template: tmpl, vars: mergeParams(params...)})
	return p
}

// System appends a system section rendered from the template and params.
func (p *PromptTemplate) System(tmpl string, params ...map[string]any) *PromptTemplate {
	p.system = append(p.system, &templateText{name: "system", template: tmpl, vars: mergeParams(params...)})
	return p
}

// Build renders every section and returns the Prompt.
func (p *PromptTemplate) Build() (*Prompt, error) {
	system, err := render(p.system)
	if err != nil {
		return nil, err
	}
	user, err := render(p.user)
	if err != nil {
		return nil, err
	}
	return &Prompt{System: system, User: user}, nil
}

func render(tmpls []*templateText) (string, error) {
	parts := make([]string, 0, len(tmpls))
	for _, tmpl := range tmpls {
		var buf strings.Builder
		t, err := template.New(tmpl.name).Parse(tmpl.template)
		if err != nil {
			return "", err
		}
		if err := t.Execute(&buf, tmpl.vars); err != nil {
			return "", err
		}
		parts = append(parts, buf.String())
	}
	return strings.Join(parts, "\n\n"), nil
}
