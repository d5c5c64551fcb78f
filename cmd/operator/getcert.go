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

	"github.com/spf13/cobra"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
	"github.com/dimaqq/haproxy-operator/pkg/tlsrelation"
)

var (
	getCertSnapshotPath string
	getCertSecretsDir   string
)

var getCertCmd = &cobra.Command{
	Use:   "get-certificate <hostname>",
	Short: "Print the issued certificate for a hostname",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname := args[0]
		model, err := relation.LoadSnapshot(getCertSnapshotPath)
		if err != nil {
			return fmt.Errorf("loading model snapshot: %w", err)
		}
		secrets, err := tlsrelation.NewFileSecretStore(getCertSecretsDir)
		if err != nil {
			return err
		}
		store := tlsrelation.NewStore(model, secrets)
		cert, err := store.GetProviderCertWithHostname(hostname)
		if err != nil {
			return err
		}
		if cert == nil {
			return fmt.Errorf("no certificate issued for %s", hostname)
		}
		fmt.Print(cert.Certificate)
		return nil
	},
}

func init() {
	getCertCmd.Flags().StringVar(&getCertSnapshotPath, "snapshot", "/var/lib/haproxy-operator/model.json",
		"Path to the model snapshot file")
	getCertCmd.Flags().StringVar(&getCertSecretsDir, "secrets-dir", "/var/lib/haproxy-operator/secrets",
		"Directory holding private-key secrets")
}
