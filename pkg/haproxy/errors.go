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

package haproxy

import "errors"

var (
	// ErrPackagePin is returned when holding the haproxy package at its
	// pinned version failed.
	ErrPackagePin = errors.New("failed pinning the haproxy package version")

	// ErrServiceNotActive is returned when the haproxy service is not
	// running after a reload.
	ErrServiceNotActive = errors.New("haproxy service is not running")

	// ErrServiceReload is returned when reloading the haproxy service
	// failed.
	ErrServiceReload = errors.New("failed reloading the haproxy service")

	// ErrConfigValidation is returned when the rendered configuration does
	// not pass validation. The running service is left untouched.
	ErrConfigValidation = errors.New("failed validating the haproxy config")
)
