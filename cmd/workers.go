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
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/jerry-enebeli/conciliation"
	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/internal/notification"
	redis_db "github.com/jerry-enebeli/conciliation/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// reportFailedRun notifies once a run has used up its retries.
func reportFailedRun(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		return
	}
	notification.NotifyError(fmt.Errorf("task %s failed after %d attempts: %w", task.Type(), retried+1, err))
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		redisOption,
		asynq.Config{
			Concurrency:  conf.Queue.Concurrency,
			Queues:       map[string]int{conf.Queue.RunQueue: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(reportFailedRun),
		},
	), nil
}

func initializeTaskHandlers(c *conciliation.Conciliation, mux *asynq.ServeMux) {
	mux.HandleFunc(conciliation.TypeRunConciliation, c.ProcessRunTask)
}

// workerCommands defines the "workers" command that processes queued conciliation runs.
func workerCommands(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start conciliation workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			phClient, shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}
			if phClient != nil {
				defer phClient.Close()
			}

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(a.conciliation, mux)

			redisOption, _ := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOption,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
