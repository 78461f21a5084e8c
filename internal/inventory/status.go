package inventory

import (
	"errors"
	"net/http"
	"strings"

	"github.com/HerbHall/alarmdesk/pkg/models"
)

// HTTPStatus maps repository and validation errors to a response code.
func HTTPStatus(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ProblemType returns the RFC 7807 type URI for an HTTP status,
// e.g. "https://alarmdesk.dev/problems/not-found".
func ProblemType(status int) string {
	slug := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "-"))
	if slug == "" {
		slug = "about-blank"
	}
	return "https://alarmdesk.dev/problems/" + slug
}
