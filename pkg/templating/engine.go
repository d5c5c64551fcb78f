// Copyright 2025 The haproxy-operator authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package templating renders the proxy's configuration templates.
//
// Templates use Jinja2 syntax and are compiled once at engine construction
// so syntax errors surface at startup, not in the middle of a
// reconciliation.
package templating

import (
	"github.com/nikolalohinski/gonja/v2/builtins"
	"github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
)

// Engine holds the compiled configuration templates.
type Engine struct {
	compiled map[string]*exec.Template
}

// New compiles all given templates, keyed by name. Templates can include
// each other by name. Returns a CompilationError naming the offending
// template if any fails to compile.
func New(templates map[string]string) (*Engine, error) {
	loader := newMemoryLoader(templates)

	// TrimBlocks drops the newline after a {% %} block and LeftStripBlocks
	// strips indentation before it, so control structures do not leak
	// blank lines into the rendered configuration.
	cfg := &config.Config{
		BlockStartString:    "{%",
		BlockEndString:      "%}",
		VariableStartString: "{{",
		VariableEndString:   "}}",
		CommentStartString:  "{#",
		CommentEndString:    "#}",
		AutoEscape:          false,
		StrictUndefined:     false,
		TrimBlocks:          true,
		LeftStripBlocks:     true,
	}

	environment := &exec.Environment{
		Filters:           builtins.Filters,
		Tests:             builtins.Tests,
		ControlStructures: builtins.ControlStructures,
		Methods:           builtins.Methods,
		Context:           builtins.GlobalFunctions,
	}

	engine := &Engine{compiled: make(map[string]*exec.Template, len(templates))}
	for name := range templates {
		compiled, err := exec.NewTemplate(name, cfg, loader, environment)
		if err != nil {
			return nil, &CompilationError{TemplateName: name, Cause: err}
		}
		engine.compiled[name] = compiled
	}
	return engine, nil
}

// Render executes the named template with the given context.
func (e *Engine) Render(name string, context map[string]any) (string, error) {
	template, ok := e.compiled[name]
	if !ok {
		return "", &NotFoundError{TemplateName: name}
	}
	output, err := template.ExecuteToString(exec.NewContext(context))
	if err != nil {
		return "", &RenderError{TemplateName: name, Cause: err}
	}
	return output, nil
}
