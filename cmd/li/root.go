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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/li/internal/version"
	"github.com/teradata-labs/li/pkg/lierr"
)

// Exit codes: 0 clean, 1 runtime failure, 2 configuration error.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

var rootCmd = &cobra.Command{
	Use:           "li",
	Short:         "li - healthcare integration engine",
	Long:          `li runs Productions: configured pipelines of inbound services, routing processes, and outbound operations moving HL7 and other clinical payloads between systems.`,
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps errors to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, lierr.ErrConfiguration) || errors.Is(err, lierr.ErrValidationFailed) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix("LI")
	viper.AutomaticEnv()
}
