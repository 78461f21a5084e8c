package zabbix

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth matches every *AuthError.
	ErrAuth = errors.New("zabbix: authentication failed")
	// ErrUpstream matches every *UpstreamError.
	ErrUpstream = errors.New("zabbix: upstream request failed")
)

// RPCError is the error member of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *RPCError) String() string {
	if e.Data == "" {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s %s (code %d)", e.Message, e.Data, e.Code)
}

// AuthError reports that user.login was rejected or could not be completed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("zabbix: authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error        { return e.Err }
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// UpstreamError reports a transport failure, a non-2xx HTTP status, an
// undecodable body, or a JSON-RPC error payload. RPC is set only for the latter.
type UpstreamError struct {
	Method     string
	StatusCode int
	RPC        *RPCError
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.RPC != nil:
		return fmt.Sprintf("zabbix %s: %s", e.Method, e.RPC)
	case e.StatusCode != 0:
		return fmt.Sprintf("zabbix %s: http %d: %v", e.Method, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("zabbix %s: %v", e.Method, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error        { return e.Err }
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// sessionMarkers are the error texts Zabbix returns for an expired or
// invalidated auth token.
var sessionMarkers = []string{"session terminated", "not authorised", "not authorized", "re-login"}

// isSessionError reports whether err is an RPC error caused by a stale token.
func isSessionError(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.RPC == nil {
		return false
	}
	text := strings.ToLower(ue.RPC.Message + " " + ue.RPC.Data)
	for _, m := range sessionMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
