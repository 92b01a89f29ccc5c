package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation, core.ErrCatPolicy:
		return http.StatusBadRequest, true
	case core.ErrCatSampling:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatOracle:
		return http.StatusServiceUnavailable, true
	case core.ErrCatExecution:
		if domErr.Code == core.CodeProviderUnavailable {
			return http.StatusServiceUnavailable, true
		}
		return http.StatusBadGateway, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps err to a status and writes it with its code.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		s.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var domErr *core.DomainError
	errors.As(err, &domErr)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "code", domErr.Code, "error", err)
	}
	respondJSON(w, status, ErrorResponse{
		Error:   domErr.Message,
		Code:    domErr.Code,
		Details: domErr.Details,
	})
}
