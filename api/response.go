package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/conciliation/internal/apierror"
)

// Result codes carried in the status field of every response body.
const (
	statusOK       = 1
	statusNotFound = 0
	statusError    = -1
)

// Response is the envelope of every conciliation endpoint.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	ID      int64       `json:"id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

func respond(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, Response{Status: statusOK, Message: message, Data: data})
}

func respondInvalid(c *gin.Context, httpStatus int, err error) {
	c.JSON(httpStatus, Response{Status: statusError, Message: "Invalid request", Error: err.Error()})
}

// respondError renders err with the HTTP status of its code. data is attached when
// part of the work succeeded, e.g. a run whose save failed.
func respondError(c *gin.Context, err error, data interface{}) {
	resp := Response{Status: statusError, Message: "An unexpected error occurred", Data: data}

	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		resp.Message = apiErr.Message
		resp.Error = apiErr.Code
		if apiErr.Code == apierror.ErrNotFound {
			resp.Status = statusNotFound
		}
	} else {
		logrus.Error(err)
		resp.Error = apierror.ErrInternalServer
	}

	c.JSON(apierror.MapErrorToHTTPStatus(err), resp)
}
