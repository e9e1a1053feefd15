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
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/jerry-enebeli/conciliation/api/model"
)

// ExecuteConciliation runs a conciliation and returns it without saving.
func (a Api) ExecuteConciliation(c *gin.Context) {
	var req model2.RunConciliation
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateRunConciliation(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	header, err := a.service.Run(c.Request.Context(), req.InstitutionCode, req.CutOffDate)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusOK, "Conciliation executed", header)
}

// SaveConciliation stores a header returned by ExecuteConciliation, replacing any
// earlier result for the same institution and day.
func (a Api) SaveConciliation(c *gin.Context) {
	var req model2.SaveConciliation
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateSaveConciliation(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	id, err := a.service.Save(c.Request.Context(), req.Conciliation)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, Response{Status: statusOK, ID: id, Message: "Conciliation saved"})
}

// ProcessConciliation refreshes the institution side, runs and saves. When only the
// save fails the computed conciliation is still returned with the error.
func (a Api) ProcessConciliation(c *gin.Context) {
	var req model2.RunConciliation
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateRunConciliation(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	header, id, err := a.service.ProcessCompletely(c.Request.Context(), req.InstitutionCode, req.CutOffDate)
	if err != nil {
		if header != nil {
			respondError(c, err, header)
			return
		}
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, Response{Status: statusOK, ID: id, Message: "Conciliation processed", Data: header})
}

func (a Api) EnqueueConciliation(c *gin.Context) {
	var req model2.RunConciliation
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateRunConciliation(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	taskID, err := a.service.EnqueueRun(c.Request.Context(), req.InstitutionCode, req.CutOffDate)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusAccepted, "Conciliation queued", gin.H{"task_id": taskID})
}

// ListByStatus returns the daily timeline of an institution from from_date to today.
func (a Api) ListByStatus(c *gin.Context) {
	var req model2.ListByStatus
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateListByStatus(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	entries, err := a.service.ListByStatus(c.Request.Context(), req.InstitutionCode, req.FromDate, req.StatusFilter())
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusOK, "Conciliation timeline", entries)
}

func (a Api) GetDetail(c *gin.Context) {
	var req model2.GetDetail
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateGetDetail(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	details, err := a.service.GetDetail(c.Request.Context(), req.InstitutionCode, req.CutOffDate, req.StateFilter())
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusOK, "Conciliation detail", details)
}

// UpdateDetail applies manual review to detail lines and returns the recalculated header.
func (a Api) UpdateDetail(c *gin.Context) {
	var req model2.UpdateDetail
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateUpdateDetail(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	summary, err := a.service.UpdateDetailAndRecalculate(c.Request.Context(), req.InstitutionCode, req.CutOffDate, req.Details)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusOK, "Conciliation updated", summary)
}

func (a Api) GetInstitutions(c *gin.Context) {
	institutions, err := a.service.Institutions(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusOK, "Institutions", institutions)
}
