package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tdeslauriers/carapace/pkg/jwt"
)

// Mock JWT Verifier implementation
type mockVerifier struct {
	verifySignatureFunc func(msg string, sig []byte) error
	buildAuthorizedFunc func(allowedScopes []string, token string) (*jwt.Token, error)
}

func (m *mockVerifier) VerifySignature(msg string, sig []byte) error {
	if m.verifySignatureFunc != nil {
		return m.verifySignatureFunc(msg, sig)
	}
	return nil
}

func (m *mockVerifier) BuildAuthorized(allowedScopes []string, token string) (*jwt.Token, error) {
	if m.buildAuthorizedFunc != nil {
		return m.buildAuthorizedFunc(allowedScopes, token)
	}
	return &jwt.Token{
		Claims: jwt.Claims{
			Subject: testUserId,
		},
	}, nil
}

// Mock DisconnectService implementation
type mockDisconnectService struct {
	disconnectFunc func(userId, mcpServerId string) DisconnectResult

	calledUserId   string
	calledServerId string
}

func (m *mockDisconnectService) Disconnect(userId, mcpServerId string) DisconnectResult {
	m.calledUserId = userId
	m.calledServerId = mcpServerId
	if m.disconnectFunc != nil {
		return m.disconnectFunc(userId, mcpServerId)
	}
	return DisconnectResult{Success: true, Message: "Disconnected successfully"}
}

func newTestHandler(svc DisconnectService, s2s, iam jwt.Verifier) *handler {
	return &handler{
		service: svc,
		s2s:     s2s,
		iam:     iam,
		logger:  slog.Default(),
	}
}

func TestHandleDisconnect(t *testing.T) {

	tests := []struct {
		name           string
		method         string
		s2s            *mockVerifier
		iam            *mockVerifier
		body           any
		service        *mockDisconnectService
		expectedStatus int
		expectSuccess  bool
	}{
		{
			name:           "success",
			method:         http.MethodPost,
			s2s:            &mockVerifier{},
			iam:            &mockVerifier{},
			body:           DisconnectCmd{McpServerId: testServerId},
			service:        &mockDisconnectService{},
			expectedStatus: http.StatusOK,
			expectSuccess:  true,
		},
		{
			name:           "method not allowed",
			method:         http.MethodGet,
			s2s:            &mockVerifier{},
			iam:            &mockVerifier{},
			body:           DisconnectCmd{McpServerId: testServerId},
			service:        &mockDisconnectService{},
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:   "s2s auth failure",
			method: http.MethodPost,
			s2s: &mockVerifier{
				buildAuthorizedFunc: func(allowedScopes []string, token string) (*jwt.Token, error) {
					return nil, errors.New("invalid service token")
				},
			},
			iam:            &mockVerifier{},
			body:           DisconnectCmd{McpServerId: testServerId},
			service:        &mockDisconnectService{},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:   "user auth failure",
			method: http.MethodPost,
			s2s:    &mockVerifier{},
			iam: &mockVerifier{
				buildAuthorizedFunc: func(allowedScopes []string, token string) (*jwt.Token, error) {
					return nil, errors.New("invalid user token")
				},
			},
			body:           DisconnectCmd{McpServerId: testServerId},
			service:        &mockDisconnectService{},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:   "missing server id maps to unprocessable entity",
			method: http.MethodPost,
			s2s:    &mockVerifier{},
			iam:    &mockVerifier{},
			body:   DisconnectCmd{},
			service: &mockDisconnectService{
				disconnectFunc: func(userId, mcpServerId string) DisconnectResult {
					return DisconnectResult{Success: false, Error: "Server ID is required"}
				},
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:   "collaborator failure maps to internal server error",
			method: http.MethodPost,
			s2s:    &mockVerifier{},
			iam:    &mockVerifier{},
			body:   DisconnectCmd{McpServerId: testServerId},
			service: &mockDisconnectService{
				disconnectFunc: func(userId, mcpServerId string) DisconnectResult {
					return DisconnectResult{Success: false, Error: "connection refused"}
				},
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			h := newTestHandler(tc.service, tc.s2s, tc.iam)

			payload, err := json.Marshal(tc.body)
			if err != nil {
				t.Fatalf("failed to marshal request body: %v", err)
			}

			req := httptest.NewRequest(tc.method, "/mcp/credentials/disconnect", bytes.NewReader(payload))
			req.Header.Set("Service-Authorization", "svc-token")
			req.Header.Set("Authorization", "user-token")
			rec := httptest.NewRecorder()

			h.HandleDisconnect(rec, req)

			if rec.Code != tc.expectedStatus {
				t.Errorf("status = %d, expected %d", rec.Code, tc.expectedStatus)
			}

			if tc.expectedStatus == http.StatusOK {

				var result DisconnectResult
				if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if result.Success != tc.expectSuccess {
					t.Errorf("success = %v, expected %v", result.Success, tc.expectSuccess)
				}

				// the acting user comes from the verified token subject
				if tc.service.calledUserId != testUserId {
					t.Errorf("service called with user %q, expected %q", tc.service.calledUserId, testUserId)
				}
			}
		})
	}
}
