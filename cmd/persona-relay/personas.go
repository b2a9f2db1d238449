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

	"github.com/spf13/cobra"
)

func newPersonasCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the personas in the directory contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, _, err := flags.newRelay(cmd)
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.Registry().Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("read directory: %w", err)
			}
			for _, p := range r.Registry().Personas() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Name, p.InitialStateCID); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
