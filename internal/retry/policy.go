package retry

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Policy names the response and error conditions that warrant a retry,
// following Envoy's x-envoy-retry-on grammar.
type Policy struct {
	serverError    bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	statusCodes    []int
}

// NewDefaultPolicy retries on gateway errors, connect failures and retriable
// 4xx responses.
func NewDefaultPolicy() *Policy {
	return &Policy{
		gatewayError:   true,
		connectFailure: true,
		retriable4xx:   true,
		statusCodes:    []int{},
	}
}

// NewPolicyFromString parses a comma-separated condition list. Conditions are
// "5xx", "gateway-error", "connect-failure", "retriable-4xx" or a bare status
// code.
func NewPolicyFromString(s string) (*Policy, error) {
	p := &Policy{}
	for _, s := range strings.Split(s, ",") {
		switch s {
		case "5xx":
			p.serverError = true
		case "gateway-error":
			p.gatewayError = true
		case "connect-failure":
			p.connectFailure = true
		case "retriable-4xx":
			p.retriable4xx = true
		default:
			statusCode, err := strconv.Atoi(s)
			if err != nil {
				return nil, xerrors.Errorf("invalid retry condition: %s", s)
			}
			p.statusCodes = append(p.statusCodes, statusCode)
		}
	}
	return p, nil
}

func (p *Policy) CheckResponse(response *http.Response) bool {
	if (p.serverError && response.StatusCode >= 500 && response.StatusCode < 600) ||
		(p.gatewayError && response.StatusCode >= 502 && response.StatusCode < 505) ||
		(p.retriable4xx && response.StatusCode == 409) {
		return true
	}

	for _, i := range p.statusCodes {
		if i == response.StatusCode {
			return true
		}
	}

	return false
}

func (p *Policy) CheckError(err error) bool {
	type temporary interface{ Temporary() bool }
	var terr temporary
	if (errors.As(err, &terr) && terr.Temporary()) || errors.Is(err, io.EOF) {
		// Disconnects and resets count as connect failures, and Envoy also
		// folds them into 5xx.
		if p.connectFailure || p.serverError {
			return true
		}
	}
	return false
}
