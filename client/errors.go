package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// APIError carries the server's structured error response.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"error"`
	Code       int    `json:"code"`
	Message    string `json:"message"`

	// Conflict details, populated on 409 reservation responses.
	ResourceKey   string `json:"resource_key,omitempty"`
	HolderAgentID string `json:"holder_agent_id,omitempty"`
	HolderAlias   string `json:"holder_alias,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("aweb: %s (%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("aweb: http %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool { return statusIs(err, http.StatusNotFound) }

// IsConflict reports whether err is a 409 from the server, e.g. a held
// reservation.
func IsConflict(err error) bool { return statusIs(err, http.StatusConflict) }

// IsForbidden reports whether err is a 403 from the server.
func IsForbidden(err error) bool { return statusIs(err, http.StatusForbidden) }

// IsGone reports whether err is a 410 from the server (retired recipient).
func IsGone(err error) bool { return statusIs(err, http.StatusGone) }

func statusIs(err error, status int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == status
}

func errorFromResponse(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = resp.String()
	}
	return apiErr
}
