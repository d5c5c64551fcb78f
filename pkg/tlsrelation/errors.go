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

package tlsrelation

import "errors"

var (
	// ErrSecretNotFound is returned by a SecretStore when no secret exists
	// under the requested label.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrMissingPrivateKey indicates a stored key pair without usable key
	// material.
	ErrMissingPrivateKey = errors.New("private key missing from secret")

	// ErrInvalidCertificate indicates certificate or CSR material that
	// could not be parsed.
	ErrInvalidCertificate = errors.New("invalid certificate material")
)
