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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dimaqq/haproxy-operator/pkg/haproxy"
)

var validateHAProxyBinary string

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate a haproxy configuration file",
	Long: `Validate a haproxy configuration file without touching the running service.

Validation runs in two phases: a syntax check with the configuration
parser, then a semantic check with the haproxy binary itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		config, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		validator := &haproxy.TwoPhaseValidator{Binary: validateHAProxyBinary}
		if err := validator.Validate(cmd.Context(), string(config), path); err != nil {
			return err
		}
		fmt.Println("configuration is valid")
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateHAProxyBinary, "haproxy-binary", "",
		"Path to the haproxy binary (default: looked up in PATH)")
}
