/*
Copyright 2024 Blnk Finance Authors.

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

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/conciliation/api"
	"github.com/jerry-enebeli/conciliation/config"
	trace "github.com/jerry-enebeli/conciliation/internal/traces"
)

const (
	heartbeatInterval = 5 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// newHTTPServer builds the server for cfg. With SSL enabled certificates are managed
// by certmagic; without a configured domain it falls back to localhost.
func newHTTPServer(ctx context.Context, r *gin.Engine, cfg config.ServerConfig) (*http.Server, error) {
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if !cfg.SSL {
		return server, nil
	}

	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = cfg.Email
	magic := certmagic.NewDefault()
	magic.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{cfg.Domain}
	if cfg.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}
	if err := magic.ManageSync(ctx, domains); err != nil {
		return nil, err
	}
	server.TLSConfig = magic.TLSConfig()
	return server, nil
}

// serve runs server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if server.TLSConfig != nil {
			log.Printf("Starting HTTPS server on %s", server.Addr)
			err = server.ListenAndServeTLS("", "")
		} else {
			log.Printf("Starting server on http://localhost%s", server.Addr)
			err = server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logrus.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	}
}

// sendHeartbeat reports the instance to PostHog until ctx is done.
func sendHeartbeat(ctx context.Context, client posthog.Client, heartbeatID, project string) {
	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.Enqueue(posthog.Capture{
					DistinctId: heartbeatID,
					Event:      "server_heartbeat",
					Properties: map[string]interface{}{
						"timestamp": time.Now().UTC(),
						"project":   project,
					},
				}); err != nil {
					log.Printf("Failed to send heartbeat: %v", err)
				}
			}
		}
	}()
}

func initializeRouter(a *app) (*gin.Engine, error) {
	server := api.NewAPI(a.conciliation)
	if server == nil {
		return nil, fmt.Errorf("configuration is not loaded")
	}
	return server.Router(), nil
}

func initializePostHog(ctx context.Context, cfg *config.Configuration) (posthog.Client, error) {
	client, err := posthog.NewWithConfig(cfg.PostHogKey, posthog.Config{Endpoint: "https://us.i.posthog.com"})
	if err != nil {
		return nil, err
	}
	sendHeartbeat(ctx, client, uuid.New().String(), cfg.ProjectName)
	return client, nil
}

// initializeObservability starts tracing and, when a key is configured, the PostHog
// heartbeat. Both are skipped unless telemetry is enabled.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (posthog.Client, func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return nil, func(context.Context) error { return nil }, nil
	}

	shutdown, err := trace.SetupOTelSDK(ctx, "CONCILIATION")
	if err != nil {
		return nil, nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}

	if cfg.PostHogKey == "" {
		return nil, shutdown, nil
	}
	phClient, err := initializePostHog(ctx, cfg)
	if err != nil {
		log.Printf("PostHog heartbeat disabled: %v", err)
		return nil, shutdown, nil
	}
	return phClient, shutdown, nil
}

// serverCommands returns the "start" command serving the HTTP API.
func serverCommands(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start conciliation server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			router, err := initializeRouter(a)
			if err != nil {
				log.Fatal(err)
			}

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			phClient, shutdown, err := initializeObservability(ctx, cfg)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			server, err := newHTTPServer(ctx, router, cfg.Server)
			if err != nil {
				log.Fatal(err)
			}
			if err := serve(ctx, server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
