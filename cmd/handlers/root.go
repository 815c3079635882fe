/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsbundle/internal/config"
	"newsbundle/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newsbundle",
		Short: "newsbundle clusters news articles into token-bounded topic bundles.",
		Long: `newsbundle groups news articles by semantic similarity using HDBSCAN
density clustering, tunes the clustering parameters by grid search, and
splits any topic whose articles exceed the token budget of a downstream
summarizer.

Examples:
  newsbundle cluster articles.json
  newsbundle cluster articles.json --optimize=false --save
  newsbundle runs
  newsbundle runs show <run-id>`,
		SilenceUsage: true,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.newsbundle.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewClusterCmd())
	rootCmd.AddCommand(NewRunsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Load configuration using the centralized config module
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)

	// Show which config file is being used (if any)
	if cfg.App.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", cfg.App.ConfigFile)
	}
}
