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

package relation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Databag values written by remote charms are JSON-encoded ("\"web\"", "80",
// "true") but some legacy charms write bare strings. The helpers below decode
// the JSON form and fall back to the raw string, mirroring how the platform's
// own tooling loads relation data.

// String returns the value under key decoded as a string.
func (d Databag) String(key string) string {
	raw, ok := d[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	return raw
}

// Int decodes the value under key as an integer.
func (d Databag) Int(key string) (int, error) {
	raw, ok := d[key]
	if !ok {
		return 0, fmt.Errorf("key %q not present in databag", key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.Trim(raw, `"`)))
	if err != nil {
		return 0, fmt.Errorf("databag key %q is not an integer: %w", key, err)
	}
	return n, nil
}

// Bool decodes the value under key as a boolean. Absent keys are false.
func (d Databag) Bool(key string) bool {
	raw, ok := d[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal([]byte(raw), &b); err == nil {
		return b
	}
	return strings.EqualFold(strings.Trim(raw, `"`), "true")
}
