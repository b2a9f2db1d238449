// Copyright 2026 The persona-relay Authors
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
	"log/slog"

	"github.com/spf13/cobra"

	relay "github.com/wireio/persona-relay"
	"github.com/wireio/persona-relay/config"
)

type globalFlags struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "persona-relay",
		Short:         "Relay persona contract messages to an inference service",
		Long:          "persona-relay follows a node's state history stream, runs each submitted persona message through the inference service and finalizes the reply on chain.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(
		&flags.configFile,
		"config",
		"c",
		"",
		"path to the config file (defaults to ./persona-relay.yaml when present)",
	)
	rootCmd.PersistentFlags().StringVar(
		&flags.logLevel,
		"log-level",
		"",
		"overrides logging.level",
	)

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(flags),
		newInfoCmd(flags),
		newPersonasCmd(flags),
		newConfigCmd(flags),
	)
	return rootCmd
}

// load reads the configuration and applies the global flag overrides
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	return cfg, nil
}

// newRelay builds a relay from the configuration with logs on stderr
func (f *globalFlags) newRelay(cmd *cobra.Command, options ...relay.RelayOptionFunc) (*relay.Relay, *slog.Logger, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	options = append(
		[]relay.RelayOptionFunc{
			relay.WithConfig(cfg),
			relay.WithLogger(logger),
		},
		options...,
	)
	r, err := relay.New(options...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up relay: %w", err)
	}
	return r, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
