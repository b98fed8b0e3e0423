package directupload_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/direct-upload/pkg/directupload"
	"github.com/tendant/direct-upload/pkg/directupload/policy"
	"github.com/tendant/direct-upload/pkg/directupload/repo/memory"
	"github.com/tendant/direct-upload/pkg/directupload/sigv4"
)

const testRoleARN = "arn:aws:iam::123456789012:role/direct-upload"

var fixedNow = time.Date(2015, 12, 29, 10, 30, 0, 0, time.UTC)

// fakeProvider hands out a distinct credential per call
type fakeProvider struct {
	mu       sync.Mutex
	requests []directupload.IssueRequest
	count    atomic.Int64
	err      error
	hook     func(ctx context.Context)
}

func (p *fakeProvider) Issue(ctx context.Context, req directupload.IssueRequest) (*directupload.TemporaryCredential, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.hook != nil {
		p.hook(ctx)
	}
	if p.err != nil {
		return nil, p.err
	}
	n := p.count.Add(1)
	return &directupload.TemporaryCredential{
		AccessKeyID:     fmt.Sprintf("ASIATEST%04d", n),
		SecretAccessKey: fmt.Sprintf("secret-key-%04d", n),
		SessionToken:    fmt.Sprintf("session-token-%04d", n),
		ExpiresAt:       fixedNow.Add(15 * time.Minute),
	}, nil
}

func (p *fakeProvider) lastRequest() directupload.IssueRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

type fakeResolver struct {
	calls atomic.Int32
	arn   string
	err   error
	delay time.Duration
}

func (r *fakeResolver) ResolveRole(ctx context.Context, roleName string) (string, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.arn, r.err
}

type fakeDirectories struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (d *fakeDirectories) CreateDirectory(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths = append(d.paths, path)
	return d.err
}

type failingLog struct {
	directupload.AuthorizationLog
	err error
}

func (l *failingLog) Record(ctx context.Context, record *directupload.AuthorizationRecord) error {
	return l.err
}

func testSettings() directupload.Settings {
	return directupload.Settings{
		Bucket:                    "sigv4examplebucket",
		Region:                    "us-east-1",
		UploadDurationSeconds:     3600,
		CredentialDurationMinutes: 15,
		ACL:                       "public-read",
		FileSizeLimitBytes:        1048576,
		RoleName:                  "direct-upload",
		RoleSessionName:           "direct-upload-session",
	}
}

func setupTestService(t *testing.T, opts ...directupload.Option) (directupload.Service, *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{}
	base := []directupload.Option{
		directupload.WithSettings(testSettings()),
		directupload.WithCredentialProvider(provider),
		directupload.WithRoleResolver(&fakeResolver{arn: testRoleARN}),
		directupload.WithClock(func() time.Time { return fixedNow }),
	}
	svc, err := directupload.New(append(base, opts...)...)
	require.NoError(t, err)
	return svc, provider
}

func startedService(t *testing.T, opts ...directupload.Option) (directupload.Service, *fakeProvider) {
	t.Helper()
	svc, provider := setupTestService(t, opts...)
	require.NoError(t, svc.Start(context.Background()))
	require.True(t, svc.Ready())
	return svc, provider
}

func TestServiceCreation(t *testing.T) {
	zeroLimit := testSettings()
	zeroLimit.FileSizeLimitBytes = 0

	tests := []struct {
		name        string
		options     []directupload.Option
		expectError bool
		configError bool
	}{
		{
			name:        "no options should fail",
			options:     []directupload.Option{},
			expectError: true,
		},
		{
			name: "without role resolver should fail",
			options: []directupload.Option{
				directupload.WithSettings(testSettings()),
				directupload.WithCredentialProvider(&fakeProvider{}),
			},
			expectError: true,
		},
		{
			name: "zero size limit is a configuration error",
			options: []directupload.Option{
				directupload.WithSettings(zeroLimit),
				directupload.WithCredentialProvider(&fakeProvider{}),
				directupload.WithRoleResolver(&fakeResolver{arn: testRoleARN}),
			},
			expectError: true,
			configError: true,
		},
		{
			name: "complete options should succeed",
			options: []directupload.Option{
				directupload.WithSettings(testSettings()),
				directupload.WithCredentialProvider(&fakeProvider{}),
				directupload.WithRoleResolver(&fakeResolver{arn: testRoleARN}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := directupload.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
				assert.Equal(t, tt.configError, directupload.IsConfigurationError(err))
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestStartupGating(t *testing.T) {
	t.Run("NotReadyBeforeStart", func(t *testing.T) {
		svc, provider := setupTestService(t)
		assert.False(t, svc.Ready())

		auth, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "uploads"})
		assert.ErrorIs(t, err, directupload.ErrNotReady)
		assert.Nil(t, auth)
		assert.Empty(t, provider.requests)

		_, err = svc.AuthorizeNewDirectory(context.Background())
		assert.ErrorIs(t, err, directupload.ErrNotReady)
	})

	t.Run("ResolutionFailureIsPermanent", func(t *testing.T) {
		resolver := &fakeResolver{err: errors.New("sts: get_role failed: NoSuchEntity")}
		svc, provider := setupTestService(t, directupload.WithRoleResolver(resolver))

		err := svc.Start(context.Background())
		var roleErr *directupload.RoleResolutionError
		require.ErrorAs(t, err, &roleErr)

		// A second start reports the same failure without another lookup
		assert.Equal(t, err, svc.Start(context.Background()))
		assert.Equal(t, int32(1), resolver.calls.Load())

		assert.False(t, svc.Ready())
		_, err = svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "uploads"})
		assert.ErrorIs(t, err, directupload.ErrNotReady)
		assert.Empty(t, provider.requests)
	})

	t.Run("EmptyRoleIdentifier", func(t *testing.T) {
		svc, _ := setupTestService(t, directupload.WithRoleResolver(&fakeResolver{}))
		err := svc.Start(context.Background())
		var roleErr *directupload.RoleResolutionError
		assert.ErrorAs(t, err, &roleErr)
		assert.False(t, svc.Ready())
	})

	t.Run("ConcurrentStartResolvesOnce", func(t *testing.T) {
		resolver := &fakeResolver{arn: testRoleARN, delay: 10 * time.Millisecond}
		svc, _ := setupTestService(t, directupload.WithRoleResolver(resolver))

		var wg sync.WaitGroup
		errs := make([]error, 20)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = svc.Start(context.Background())
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int32(1), resolver.calls.Load())
		assert.True(t, svc.Ready())
	})
}

func TestAuthorize(t *testing.T) {
	log := memory.New()
	svc, provider := startedService(t, directupload.WithAuthorizationLog(log))

	auth, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "uploads/abc"})
	require.NoError(t, err)

	t.Run("IssueRequest", func(t *testing.T) {
		req := provider.lastRequest()
		assert.Equal(t, testRoleARN, req.RoleARN)
		assert.Equal(t, "direct-upload-session", req.SessionName)
		assert.Equal(t, "sigv4examplebucket", req.Bucket)
		assert.Equal(t, "uploads/abc/", req.ObjectKeyPrefix)
		assert.Equal(t, int32(900), req.DurationSeconds)
	})

	t.Run("Payload", func(t *testing.T) {
		assert.Equal(t, "uploads/abc/", auth.ObjectKey)
		assert.Equal(t, "public-read", auth.ACL)
		assert.Equal(t, "https://sigv4examplebucket.s3-us-east-1.amazonaws.com/", auth.UploadURL)
		assert.Equal(t, "session-token-0001", auth.SecurityToken)
		assert.Equal(t, "20151229T103000Z", auth.Date)
		assert.Equal(t, sigv4.Algorithm, auth.Algorithm)
		assert.Equal(t, "ASIATEST0001/20151229/us-east-1/s3/aws4_request", auth.Credential)
		assert.Equal(t, "1048576", auth.FileSizeLimit)
		assert.Len(t, auth.Signature, 64)
	})

	t.Run("SignatureVerifies", func(t *testing.T) {
		assert.NoError(t, sigv4.Verify("secret-key-0001", "20151229", "us-east-1", "s3", auth.Policy, auth.Signature))
		assert.Error(t, sigv4.Verify("secret-key-0002", "20151229", "us-east-1", "s3", auth.Policy, auth.Signature))
	})

	t.Run("PolicyMatchesPayload", func(t *testing.T) {
		assertPolicyMatches(t, auth, "sigv4examplebucket", 1048576)

		doc, err := policy.Decode(auth.Policy)
		require.NoError(t, err)
		assert.True(t, doc.Expiration.Equal(fixedNow.Add(time.Hour)))
		assert.True(t, doc.Expiration.After(fixedNow))
	})

	t.Run("Recorded", func(t *testing.T) {
		records, err := svc.ListAuthorizations(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "uploads/abc/", records[0].ObjectKey)
		assert.Equal(t, "sigv4examplebucket", records[0].Bucket)
		assert.True(t, records[0].ExpiresAt.Equal(fixedNow.Add(time.Hour)))

		record, err := svc.GetAuthorization(context.Background(), records[0].ID)
		require.NoError(t, err)
		assert.Equal(t, records[0].ID, record.ID)
		assert.Equal(t, "uploads/abc/", record.ObjectKey)

		_, err = svc.GetAuthorization(context.Background(), uuid.New())
		assert.ErrorIs(t, err, directupload.ErrAuthorizationNotFound)
	})
}

func assertPolicyMatches(t *testing.T, auth *directupload.UploadAuthorization, bucket string, limit int64) {
	t.Helper()

	doc, err := policy.Decode(auth.Policy)
	require.NoError(t, err)
	require.Len(t, doc.Conditions, 8)

	exact := map[string]string{
		policy.FieldBucket:        bucket,
		policy.FieldACL:           auth.ACL,
		policy.FieldCredential:    auth.Credential,
		policy.FieldSecurityToken: auth.SecurityToken,
		policy.FieldAlgorithm:     auth.Algorithm,
		policy.FieldDate:          auth.Date,
	}
	for field, want := range exact {
		got, ok := doc.Exact(field)
		assert.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}
	assert.Contains(t, doc.Conditions, policy.PrefixMatch{Field: policy.FieldKey, Prefix: auth.ObjectKey})
	assert.Contains(t, doc.Conditions, policy.SizeRange{Min: 0, Max: limit})
}

func TestAuthorize_DirectoryNormalization(t *testing.T) {
	svc, _ := startedService(t)

	valid := map[string]string{
		"uploads":       "uploads/",
		"uploads/":      "uploads/",
		"uploads//":     "uploads/",
		"a/b/c":         "a/b/c/",
		"4f1c2e-9a7b/x": "4f1c2e-9a7b/x/",
	}
	for directory, want := range valid {
		t.Run("Valid "+directory, func(t *testing.T) {
			auth, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: directory})
			require.NoError(t, err)
			assert.Equal(t, want, auth.ObjectKey)
		})
	}

	for _, directory := range []string{"", "/", "/abs", "a//b", "a/../b", ".", ".."} {
		t.Run("Invalid "+directory, func(t *testing.T) {
			_, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: directory})
			assert.ErrorIs(t, err, directupload.ErrInvalidDirectory)
		})
	}
}

func TestAuthorize_RejectsWildcardDirectories(t *testing.T) {
	svc, provider := startedService(t)

	for _, directory := range []string{"*", "*/x", "a?c", "${aws:username}", "photos/{id}"} {
		t.Run(directory, func(t *testing.T) {
			_, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: directory})
			assert.ErrorIs(t, err, directupload.ErrInvalidDirectory)
		})
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Empty(t, provider.requests, "no credential may be requested for a wildcard directory")
}

func TestAuthorize_URLStyles(t *testing.T) {
	tests := []struct {
		style    directupload.URLStyle
		endpoint string
		want     string
	}{
		{directupload.URLStyleLegacy, "", "https://sigv4examplebucket.s3-us-east-1.amazonaws.com/"},
		{directupload.URLStyleVirtual, "", "https://sigv4examplebucket.s3.us-east-1.amazonaws.com/"},
		{directupload.URLStylePath, "http://localhost:9000/", "http://localhost:9000/sigv4examplebucket/"},
	}

	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			settings := testSettings()
			settings.URLStyle = tt.style
			settings.Endpoint = tt.endpoint
			svc, _ := startedService(t, directupload.WithSettings(settings))

			auth, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "d"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, auth.UploadURL)
		})
	}
}

func TestAuthorize_Concurrent(t *testing.T) {
	svc, _ := startedService(t)

	const n = 100
	results := make([]*directupload.UploadAuthorization, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Authorize(context.Background(), directupload.AuthorizeRequest{
				Directory: fmt.Sprintf("dir-%03d", i),
			})
		}(i)
	}
	wg.Wait()

	signatures := make(map[string]bool, n)
	for i, auth := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("dir-%03d/", i), auth.ObjectKey)
		assertPolicyMatches(t, auth, "sigv4examplebucket", 1048576)

		// The credential's access key identifies which secret signed the policy
		scope, err := sigv4.ParseScope(auth.Credential)
		require.NoError(t, err)
		secret := "secret-key-" + scope.AccessKeyID[len("ASIATEST"):]
		assert.NoError(t, sigv4.Verify(secret, scope.DateStamp, scope.Region, scope.Service, auth.Policy, auth.Signature))

		signatures[auth.Signature] = true
	}
	assert.Len(t, signatures, n)
}

func TestAuthorize_Failures(t *testing.T) {
	t.Run("CredentialErrorPropagates", func(t *testing.T) {
		log := memory.New()
		svc, provider := startedService(t, directupload.WithAuthorizationLog(log))
		provider.err = &directupload.CredentialError{Op: "assume_role", Retryable: true, Err: context.DeadlineExceeded}

		auth, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "d"})
		assert.Nil(t, auth)
		assert.True(t, directupload.IsRetryable(err))

		records, err := log.List(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("CancellationReturnsNothing", func(t *testing.T) {
		log := memory.New()
		svc, provider := startedService(t, directupload.WithAuthorizationLog(log))

		ctx, cancel := context.WithCancel(context.Background())
		provider.hook = func(context.Context) { cancel() }

		auth, err := svc.Authorize(ctx, directupload.AuthorizeRequest{Directory: "d"})
		assert.Nil(t, auth)
		assert.ErrorIs(t, err, context.Canceled)

		records, err := log.List(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("AuditFailurePropagates", func(t *testing.T) {
		cause := errors.New("database unavailable")
		svc, _ := startedService(t, directupload.WithAuthorizationLog(&failingLog{AuthorizationLog: memory.New(), err: cause}))

		auth, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "d"})
		assert.Nil(t, auth)
		assert.ErrorIs(t, err, cause)
	})
}

func TestAuthorizeNewDirectory(t *testing.T) {
	t.Run("CreatesMarkerAndAuthorizes", func(t *testing.T) {
		dirs := &fakeDirectories{}
		svc, _ := startedService(t, directupload.WithDirectoryMaker(dirs))

		auth, err := svc.AuthorizeNewDirectory(context.Background())
		require.NoError(t, err)
		require.Len(t, dirs.paths, 1)

		_, err = uuid.Parse(dirs.paths[0])
		assert.NoError(t, err)
		assert.Equal(t, dirs.paths[0]+"/", auth.ObjectKey)
	})

	t.Run("DistinctDirectories", func(t *testing.T) {
		svc, _ := startedService(t)
		first, err := svc.AuthorizeNewDirectory(context.Background())
		require.NoError(t, err)
		second, err := svc.AuthorizeNewDirectory(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, first.ObjectKey, second.ObjectKey)
	})

	t.Run("MarkerFailure", func(t *testing.T) {
		cause := errors.New("put failed")
		svc, provider := startedService(t, directupload.WithDirectoryMaker(&fakeDirectories{err: cause}))

		_, err := svc.AuthorizeNewDirectory(context.Background())
		assert.ErrorIs(t, err, cause)
		assert.Empty(t, provider.requests)
	})
}

func TestAuthorize_LogsNoKeyMaterial(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	svc, provider := startedService(t, directupload.WithLogger(logger))
	_, err := svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "d"})
	require.NoError(t, err)

	provider.err = &directupload.CredentialError{Op: "assume_role", Err: errors.New("sts: assume_role failed: AccessDenied")}
	_, err = svc.Authorize(context.Background(), directupload.AuthorizeRequest{Directory: "d"})
	require.Error(t, err)

	output := buf.String()
	assert.Contains(t, output, "upload authorization issued")
	assert.Contains(t, output, "ASIATEST0001")
	assert.NotContains(t, output, "secret-key-0001")
	assert.NotContains(t, output, "session-token-0001")
	assert.NotContains(t, output, testRoleARN)
}
