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
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/conciliation/api/middleware"
	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/model"
)

// Service is the part of *conciliation.Conciliation the HTTP surface needs.
type Service interface {
	Run(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, error)
	Save(ctx context.Context, header *model.Conciliation) (int64, error)
	ProcessCompletely(ctx context.Context, institutionCode int, cutOffDate string) (*model.Conciliation, int64, error)
	EnqueueRun(ctx context.Context, institutionCode int, cutOffDate string) (string, error)
	ListByStatus(ctx context.Context, institutionCode int, fromDate string, statusFilter int) ([]model.TimelineEntry, error)
	GetDetail(ctx context.Context, institutionCode int, cutOffDate string, stateFilter int) ([]model.ConciliationDetail, error)
	UpdateDetailAndRecalculate(ctx context.Context, institutionCode int, cutOffDate string, edits []model.DetailEdit) (model.HeaderSummary, error)
	SyncSwitchTransactions(ctx context.Context, fromDate, toDate string) (int, error)
	SyncInstitutionTransactions(ctx context.Context, institutionCode int, fromDate, toDate string, services []string) (int, error)
	Institutions(ctx context.Context) ([]model.Institution, error)
}

type Api struct {
	service Service
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/institutions", a.GetInstitutions)

	router.POST("/conciliations/execute", a.ExecuteConciliation)
	router.POST("/conciliations/save", a.SaveConciliation)
	router.POST("/conciliations/process", a.ProcessConciliation)
	router.POST("/conciliations/enqueue", a.EnqueueConciliation)
	router.POST("/conciliations/list-by-status", a.ListByStatus)
	router.POST("/conciliations/detail", a.GetDetail)
	router.POST("/conciliations/update-detail", a.UpdateDetail)

	router.POST("/transactions/switch/sync", a.SyncSwitchTransactions)
	router.POST("/transactions/institution/sync", a.SyncInstitutionTransactions)
	return a.router
}

func NewAPI(s Service) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{service: s, router: r}
}
