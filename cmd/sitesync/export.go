// Copyright 2026 Blink Labs Software
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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitedb/sitesync/export"
	"github.com/sitedb/sitesync/internal/config"
)

func exportRun(cmd *cobra.Command, args []string, cfg *config.Config) error {
	exportPath := cfg.ExportPath
	// CLI argument takes priority over config
	if len(args) >= 1 {
		exportPath = args[0]
	}
	logger := commonRun()
	snap, err := loadSnapshot(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	store, err := export.Open(exportPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Write(cmd.Context(), snap)
}

func exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [db-path]",
		Short: "Load every resource and write the snapshot to a SQLite database",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := exportRun(cmd, args, configOrExit(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	addTimeoutFlag(cmd)
	return cmd
}
