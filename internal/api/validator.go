package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// deployRequest is validated before a deploy job is enqueued, matching the
// teacher's validator.go pattern of struct-tag validation ahead of
// anything that reaches a background task.
type deployRequest struct {
	TeamID    string `validate:"required"`
	Subdomain string `validate:"required"`
	ImageName string `validate:"required"`
}

// validateDeployRequest reports the first validation failure, or true if
// req is well-formed. On failure it writes the 400 response itself.
func validateDeployRequest(logger *zap.Logger, w http.ResponseWriter, r *http.Request, req deployRequest) bool {
	if err := validate.Struct(req); err != nil {
		logger.Warn("deploy request failed validation", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid deploy request: "+err.Error())
		return false
	}
	return true
}
