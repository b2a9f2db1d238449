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
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	relay "github.com/wireio/persona-relay"
	"github.com/wireio/persona-relay/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

func newRunCmd(flags *globalFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow the stream and process persona messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			r, logger, err := flags.newRelay(
				cmd,
				relay.WithMetrics(metrics.New(reg)),
			)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if metricsAddr == "" {
				metricsAddr = r.Config().Metrics.Addr
			}
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				server := &http.Server{
					Addr:              metricsAddr,
					Handler:           mux,
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					logger.Info("serving metrics", "component", "cli", "addr", metricsAddr)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics listener failed", "component", "cli", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
					defer cancel()
					_ = server.Shutdown(shutdownCtx)
				}()
			}

			err = r.Run(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Info("shutting down", "component", "cli")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(
		&metricsAddr,
		"metrics-addr",
		"",
		"address for the prometheus listener, overrides metrics.addr",
	)
	return cmd
}
