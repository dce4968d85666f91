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
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/li/pkg/lierr"
)

var sampleConfig = heredoc.Doc(`
	# li production configuration.
	# Run with: li run production.yaml
	production:
	  name: Demo
	  startup_delay: 0.1
	  drain_timeout: 10
	  shutdown_timeout: 30

	wal:
	  dir: ./wal
	  durability: async

	store:
	  driver: sqlite
	  dsn: ./messages.db

	admin:
	  port: 9090

	log:
	  level: info
	  format: text

	items:
	  - name: HL7.In
	    class_name: li.hosts.hl7.mllp.service
	    pool_size: 2
	    adapter_settings:
	      Port: 2575
	    host_settings:
	      TargetConfigNames: Router

	  - name: Router
	    class_name: li.hosts.router.process

	  - name: PAS
	    class_name: li.hosts.hl7.mllp.operation
	    adapter_settings:
	      IPAddress: 127.0.0.1
	      Port: 6661
	    host_settings:
	      ReplyCodeActions: "?R=F,?E=R,*=S"

	rules:
	  - name: adt
	    priority: 1
	    condition: '{MSH-9.1} = "ADT"'
	    action: send
	    targets: [PAS]

	connections:
	  - {from: HL7.In, to: Router}
	  - {from: Router, to: PAS}
`)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter production configuration",
	Long: `Init writes a commented starter configuration with one MLLP inbound
service, a routing process, and one MLLP outbound operation.

Examples:
  li init production.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return lierr.Configf("%s already exists, refusing to overwrite", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
