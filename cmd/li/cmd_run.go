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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/li/internal/log"
	"github.com/teradata-labs/li/pkg/config"
	"github.com/teradata-labs/li/pkg/production"
)

var runCmd = &cobra.Command{
	Use:   "run [config]",
	Short: "Run a production until interrupted",
	Long: `Run loads a production configuration, starts every enabled item, and
blocks until SIGINT or SIGTERM. Shutdown pauses inbound services,
drains queues, and stops items in reverse start order.

Examples:
  li run production.yaml
  li run production.yaml --log-level debug
  LI_LOG_FORMAT=json li run production.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runProduction,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runProduction(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if level == "" || cmd.Flags().Changed("log-level") {
		level = viper.GetString("log.level")
	}
	format := cfg.Log.Format
	if format == "" || cmd.Flags().Changed("log-format") {
		format = viper.GetString("log.format")
	}
	if err := log.Init(level, format); err != nil {
		return err
	}

	engine, err := production.New(cfg, log.Logger())
	if err != nil {
		return err
	}
	return engine.Run(cmd.Context())
}
