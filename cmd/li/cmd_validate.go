// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
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

	"github.com/teradata-labs/li/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Validate a production configuration file",
	Long: `Validate checks a configuration file against the schema and the
cross-reference rules (unique item names, resolvable connection and
routing targets) without starting anything.

Examples:
  li validate production.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s: OK\n", args[0])
	fmt.Printf("  production:  %s\n", cfg.Production.Name)
	fmt.Printf("  items:       %d\n", len(cfg.Items))
	fmt.Printf("  rules:       %d\n", len(cfg.Rules))
	fmt.Printf("  connections: %d\n", len(cfg.Connections))
	return nil
}
