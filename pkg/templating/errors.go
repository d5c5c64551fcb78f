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

package templating

import "fmt"

// CompilationError reports a template that failed to compile at engine
// construction.
type CompilationError struct {
	TemplateName string
	Cause        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile template %q: %v", e.TemplateName, e.Cause)
}

func (e *CompilationError) Unwrap() error {
	return e.Cause
}

// RenderError reports a compiled template that failed during execution,
// usually because of missing or mistyped context values.
type RenderError struct {
	TemplateName string
	Cause        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render template %q: %v", e.TemplateName, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// NotFoundError reports a request for a template the engine was not built
// with.
type NotFoundError struct {
	TemplateName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.TemplateName)
}
