package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/direct-upload/pkg/directupload"
	"github.com/tendant/direct-upload/pkg/directupload/api"
)

type staticProvider struct{}

func (staticProvider) Issue(ctx context.Context, req directupload.IssueRequest) (*directupload.TemporaryCredential, error) {
	return &directupload.TemporaryCredential{
		AccessKeyID:     "ASIASERVER",
		SecretAccessKey: "server-secret",
		SessionToken:    "server-token",
		ExpiresAt:       time.Now().Add(15 * time.Minute),
	}, nil
}

type staticResolver struct{}

func (staticResolver) ResolveRole(ctx context.Context, roleName string) (string, error) {
	return "arn:aws:iam::123456789012:role/" + roleName, nil
}

func newTestHandler(t *testing.T) *api.Handler {
	t.Helper()
	svc, err := directupload.New(
		directupload.WithSettings(directupload.Settings{
			Bucket:                    "upload-bucket",
			Region:                    "us-east-1",
			UploadDurationSeconds:     300,
			CredentialDurationMinutes: 15,
			ACL:                       "private",
			FileSizeLimitBytes:        1024,
			RoleName:                  "direct-upload",
			RoleSessionName:           "server-test",
		}),
		directupload.WithCredentialProvider(staticProvider{}),
		directupload.WithRoleResolver(staticResolver{}),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	return api.NewHandler(svc, nil, nil)
}

func TestRoutes(t *testing.T) {
	router := routes(newTestHandler(t), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/upload/authorization", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutes_CORS(t *testing.T) {
	router := routes(newTestHandler(t), []string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/authorizations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
