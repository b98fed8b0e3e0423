package directupload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/direct-upload/pkg/directupload/policy"
	"github.com/tendant/direct-upload/pkg/directupload/sigv4"
)

// ErrInvalidDirectory indicates a requested upload directory that cannot be used as a key prefix
var ErrInvalidDirectory = errors.New("invalid upload directory")

// service implements the Service interface
type service struct {
	settings    Settings
	credentials CredentialProvider
	roles       RoleResolver
	directories DirectoryMaker
	log         AuthorizationLog
	now         func() time.Time
	logger      *slog.Logger
	selfTest    func() error

	initMu  sync.Mutex
	initErr error
	roleARN atomic.Pointer[string]
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithSettings sets the static settings
func WithSettings(settings Settings) Option {
	return func(s *service) {
		s.settings = settings
	}
}

// WithCredentialProvider sets the temporary credential source
func WithCredentialProvider(provider CredentialProvider) Option {
	return func(s *service) {
		s.credentials = provider
	}
}

// WithRoleResolver sets the role lookup used by Start
func WithRoleResolver(resolver RoleResolver) Option {
	return func(s *service) {
		s.roles = resolver
	}
}

// WithDirectoryMaker sets the collaborator that creates directory markers
func WithDirectoryMaker(maker DirectoryMaker) Option {
	return func(s *service) {
		s.directories = maker
	}
}

// WithAuthorizationLog sets the audit log for issued authorizations
func WithAuthorizationLog(log AuthorizationLog) Option {
	return func(s *service) {
		s.log = log
	}
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		now:      time.Now,
		logger:   slog.Default(),
		log:      NewNoopAuthorizationLog(),
		selfTest: sigv4.SelfTest,
	}

	for _, option := range options {
		option(s)
	}

	if s.credentials == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if s.roles == nil {
		return nil, fmt.Errorf("role resolver is required")
	}
	if err := s.settings.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *service) Start(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.roleARN.Load() != nil {
		return nil
	}
	if s.initErr != nil {
		return s.initErr
	}

	if err := s.selfTest(); err != nil {
		s.initErr = &SigningError{Err: err}
		return s.initErr
	}

	arn, err := s.roles.ResolveRole(ctx, s.settings.RoleName)
	if err != nil {
		var roleErr *RoleResolutionError
		if !errors.As(err, &roleErr) {
			err = &RoleResolutionError{Err: err}
		}
		s.initErr = err
		return s.initErr
	}
	if arn == "" {
		s.initErr = &RoleResolutionError{Err: errors.New("empty role identifier")}
		return s.initErr
	}

	s.roleARN.Store(&arn)
	s.logger.Info("upload role resolved", "bucket", s.settings.Bucket, "region", s.settings.Region)
	return nil
}

func (s *service) Ready() bool {
	return s.roleARN.Load() != nil
}

func (s *service) Settings() Settings {
	return s.settings
}

func (s *service) Authorize(ctx context.Context, req AuthorizeRequest) (*UploadAuthorization, error) {
	roleARN := s.roleARN.Load()
	if roleARN == nil {
		return nil, ErrNotReady
	}

	prefix, err := directoryPrefix(req.Directory)
	if err != nil {
		return nil, err
	}

	credential, err := s.credentials.Issue(ctx, IssueRequest{
		RoleARN:         *roleARN,
		SessionName:     s.settings.RoleSessionName,
		Bucket:          s.settings.Bucket,
		ObjectKeyPrefix: prefix,
		DurationSeconds: s.settings.CredentialDurationSeconds(),
	})
	if err != nil {
		s.logger.Warn("temporary credential request failed", "object_key", prefix, "retryable", IsRetryable(err), "err", err)
		return nil, err
	}

	now := s.now().UTC()
	dateStamp := now.Format(sigv4.DateFormat)
	isoDate := now.Format(sigv4.DateTimeFormat)
	scope := CredentialScope(credential.AccessKeyID, dateStamp, s.settings.Region, sigv4.ServiceS3)
	expiresAt := now.Add(time.Duration(s.settings.UploadDurationSeconds) * time.Second)

	uploadURL, err := UploadURL(s.settings.URLStyle, s.settings.Bucket, s.settings.Region, s.settings.Endpoint)
	if err != nil {
		return nil, err
	}

	builder := policy.NewBuilder(policy.WithClock(func() time.Time { return now }))
	doc, err := builder.Build(policy.Params{
		Bucket:          s.settings.Bucket,
		ObjectKeyPrefix: prefix,
		ACL:             s.settings.ACL,
		CredentialScope: scope,
		SecurityToken:   credential.SessionToken,
		Algorithm:       sigv4.Algorithm,
		ISODate:         isoDate,
		SizeLimitBytes:  s.settings.FileSizeLimitBytes,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return nil, &ConfigurationError{Field: "policy", Err: err}
	}

	document, err := doc.Marshal()
	if err != nil {
		return nil, &SerializationError{Err: err}
	}

	base64Policy, signature := sigv4.Sign(credential.SecretAccessKey, dateStamp, s.settings.Region, sigv4.ServiceS3, document)

	authorization, err := Assemble(AssembleInput{
		ObjectKey:      prefix,
		ACL:            s.settings.ACL,
		UploadURL:      uploadURL,
		Base64Policy:   base64Policy,
		SecurityToken:  credential.SessionToken,
		ISODate:        isoDate,
		Credential:     scope,
		Signature:      signature,
		SizeLimitBytes: s.settings.FileSizeLimitBytes,
	})
	if err != nil {
		return nil, err
	}

	// A caller that gave up while the credential call was in flight gets nothing back.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := &AuthorizationRecord{
		ID:                  uuid.New(),
		Bucket:              s.settings.Bucket,
		Region:              s.settings.Region,
		ObjectKey:           prefix,
		ExpiresAt:           expiresAt,
		CredentialExpiresAt: credential.ExpiresAt,
		CreatedAt:           now,
	}
	if err := s.log.Record(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record authorization: %w", err)
	}

	s.logger.Info("upload authorization issued",
		"authorization_id", record.ID,
		"object_key", prefix,
		"expires_at", expiresAt,
		"credential", credential)

	return authorization, nil
}

func (s *service) AuthorizeNewDirectory(ctx context.Context) (*UploadAuthorization, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}

	directory := uuid.New().String()
	if s.directories != nil {
		if err := s.directories.CreateDirectory(ctx, directory); err != nil {
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
	}

	return s.Authorize(ctx, AuthorizeRequest{Directory: directory})
}

func (s *service) ListAuthorizations(ctx context.Context, limit int) ([]*AuthorizationRecord, error) {
	return s.log.List(ctx, limit)
}

func (s *service) GetAuthorization(ctx context.Context, id uuid.UUID) (*AuthorizationRecord, error) {
	return s.log.Get(ctx, id)
}

// directoryPrefix turns a directory into a key prefix ending with exactly one separator
func directoryPrefix(directory string) (string, error) {
	dir := strings.TrimRight(directory, "/")
	if dir == "" {
		return "", fmt.Errorf("%w: directory is empty", ErrInvalidDirectory)
	}
	if strings.HasPrefix(dir, "/") {
		return "", fmt.Errorf("%w: directory must be relative", ErrInvalidDirectory)
	}
	if hasPolicyMetachar(dir) {
		return "", fmt.Errorf("%w: wildcard, policy variable or control characters are not allowed", ErrInvalidDirectory)
	}
	for _, segment := range strings.Split(dir, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: invalid path segment", ErrInvalidDirectory)
		}
	}
	return dir + "/", nil
}
