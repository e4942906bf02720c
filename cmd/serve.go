// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/api"
	"github.com/fuelink/forecourt/internal/fleet"
)

var (
	serveHost string
	servePort int
	serveScan bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP management API",
	Long: `Start the management API server for point-of-sale systems and
dashboards.

With --scan, all local serial lines are scanned on startup and every pump
found is registered and connected before the server accepts requests.

The server shuts down gracefully on SIGINT or SIGTERM; in-flight requests
are drained and all lines closed.

Examples:
  forecourt serve
  forecourt serve --listen-port 9000 --scan`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "listen-host", "", "Listen address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "listen-port", 0, "Listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveScan, "scan", false, "Discover and connect pumps on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	mgr, err := newManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(2)
	}

	if serveScan {
		res, err := mgr.Discover(nil, fleet.DiscoveryConfig{
			AddressLo:  cfg.Discovery.AddressLo,
			AddressHi:  cfg.Discovery.AddressHi,
			Retries:    cfg.Discovery.Retries,
			RetryDelay: time.Duration(cfg.Discovery.RetryDelayMs) * time.Millisecond,
			AutoAdd:    true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Startup scan failed: %v\n", err)
			os.Exit(2)
		}
		logrus.WithField("found", res.TotalFound).Info("startup scan complete")
		mgr.ConnectAll()
	}

	httpCfg := cfg.HTTP
	if serveHost != "" {
		httpCfg.Host = serveHost
	}
	if servePort > 0 {
		httpCfg.Port = servePort
	}
	server := api.NewServer(mgr, httpCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logrus.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("shutdown incomplete")
	}
	mgr.DisconnectAll()
	return nil
}
