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

package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticFileMax(value int, err error) FileMaxFunc {
	return func(context.Context) (int, error) {
		return value, err
	}
}

func TestNewCharmConfig(t *testing.T) {
	config, err := NewCharmConfig(context.Background(),
		map[string]string{GlobalMaxConnOption: "4096"},
		staticFileMax(9223372036854775807, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 4096, config.GlobalMaxConnection)
}

func TestNewCharmConfigRejectsInvalidMaxconn(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-1"} {
		t.Run("value "+raw, func(t *testing.T) {
			_, err := NewCharmConfig(context.Background(),
				map[string]string{GlobalMaxConnOption: raw}, nil, nil)

			var invalid *InvalidConfigError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, []string{GlobalMaxConnOption}, invalid.Fields)
		})
	}
}

func TestNewCharmConfigRejectsMaxconnAboveFileMax(t *testing.T) {
	_, err := NewCharmConfig(context.Background(),
		map[string]string{GlobalMaxConnOption: "100000"},
		staticFileMax(65536, nil), nil)

	var invalid *InvalidConfigError
	assert.ErrorAs(t, err, &invalid)
}

func TestNewCharmConfigSkipsCeilingCheckOnSysctlFailure(t *testing.T) {
	config, err := NewCharmConfig(context.Background(),
		map[string]string{GlobalMaxConnOption: "100000"},
		staticFileMax(0, errors.New("sysctl unavailable")), nil)
	require.NoError(t, err)
	assert.Equal(t, 100000, config.GlobalMaxConnection)
}

func TestInvalidConfigErrorMessage(t *testing.T) {
	err := &InvalidConfigError{Fields: []string{"vip", "global-maxconn"}}
	assert.Equal(t, "invalid configuration: global-maxconn,vip", err.Error())
}
