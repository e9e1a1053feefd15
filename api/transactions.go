package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/jerry-enebeli/conciliation/api/model"
)

// SyncSwitchTransactions copies switch ledger movements for the date range into the
// local store.
func (a Api) SyncSwitchTransactions(c *gin.Context) {
	var req model2.SyncSwitchTransactions
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateSyncSwitchTransactions(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	count, err := a.service.SyncSwitchTransactions(c.Request.Context(), req.FromDate, req.ToDate)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusOK, "Switch transactions synchronized", gin.H{"count": count})
}

// SyncInstitutionTransactions pulls the institution's movements for the date range.
// An empty services list uses the configured service codes.
func (a Api) SyncInstitutionTransactions(c *gin.Context) {
	var req model2.SyncInstitutionTransactions
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}
	if err := req.ValidateSyncInstitutionTransactions(); err != nil {
		respondInvalid(c, http.StatusBadRequest, err)
		return
	}

	count, err := a.service.SyncInstitutionTransactions(c.Request.Context(), req.InstitutionCode, req.FromDate, req.ToDate, req.Services)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	respond(c, http.StatusOK, "Institution transactions synchronized", gin.H{"count": count})
}
