package httpadapter

import (
	"net/http"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

var statusByCode = map[string]int{
	domain.CodeInvalidInput: http.StatusBadRequest,
	domain.CodeNotFound:     http.StatusNotFound,
	domain.CodeTemporary:    http.StatusServiceUnavailable,
	domain.CodeUnavailable:  http.StatusServiceUnavailable,
}

func mapErrorToHTTPStatus(err error) int {
	if status, ok := statusByCode[domain.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
