// Package api implements the versioned RPC services dispatched by the
// gateway: Authentication, Products and the per-tenant report access
// service. Each service is a stateless rpc.Handler built fresh for
// every request from the request's resolved session and product.
package api

import (
	"context"
	"encoding/json"

	"github.com/txn2/report-gateway/pkg/rpc"
	"github.com/txn2/report-gateway/pkg/session"
)

// AuthParameters is the reply of getAuthParameters.
type AuthParameters struct {
	Enabled            bool   `json:"requiresAuthentication"`
	SessionStillActive bool   `json:"sessionStillActive"`
	UserName           string `json:"userName,omitempty"`
}

type loginParams struct {
	Method string `json:"method"`
	Auth   string `json:"auth"`
}

// Authentication serves the product-less Authentication service. It is
// the only service reachable without a valid session, so clients can
// negotiate credentials and discover version mismatches.
type Authentication struct {
	gate    *session.Manager
	current *session.Session
}

// NewAuthentication builds the service for one request. The current
// session may be nil.
func NewAuthentication(gate *session.Manager, current *session.Session) *Authentication {
	return &Authentication{gate: gate, current: current}
}

// Call implements rpc.Handler.
func (s *Authentication) Call(_ context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "getAuthParameters":
		reply := AuthParameters{Enabled: s.gate.Enabled()}
		if s.current != nil {
			reply.SessionStillActive = true
			reply.UserName = s.current.User
		}
		return reply, nil

	case "performLogin":
		var p loginParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpc.Faultf(rpc.CodeInvalidParams, "invalid login parameters")
		}
		if p.Method != "Username:Password" {
			return nil, rpc.Faultf(rpc.CodeInvalidParams,
				"unsupported login method %q", p.Method)
		}
		sess := s.gate.CreateOrGet(p.Auth)
		if sess == nil {
			return nil, rpc.Faultf(rpc.CodeUnauthorized, "invalid credentials: refused")
		}
		return sess.Token, nil

	case "getLoggedInUser":
		if s.current == nil {
			return "", nil
		}
		return s.current.User, nil

	case "destroySession":
		if s.current == nil {
			return false, nil
		}
		return s.gate.Destroy(s.current.Token), nil

	default:
		return nil, rpc.Faultf(rpc.CodeUnknownMethod,
			"Authentication has no method %q", method)
	}
}
