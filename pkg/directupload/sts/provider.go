package sts

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssts "github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/tendant/direct-upload/pkg/directupload"
)

// Provider-side bounds for AssumeRole durations with a role's default maximum session
const (
	DefaultMinDurationSeconds int32 = 900
	DefaultMaxDurationSeconds int32 = 3600
	DefaultCallTimeout              = 10 * time.Second
)

// AssumeRoleAPI is the subset of the STS client used by Provider
type AssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *awssts.AssumeRoleInput, optFns ...func(*awssts.Options)) (*awssts.AssumeRoleOutput, error)
}

// Provider issues prefix-scoped temporary credentials by assuming a role
type Provider struct {
	client      AssumeRoleAPI
	minDuration int32
	maxDuration int32
	callTimeout time.Duration
}

// Option is a functional option for configuring a Provider
type Option func(*Provider)

// WithDurationBounds sets the accepted range of requested durations, in seconds
func WithDurationBounds(min, max int32) Option {
	return func(p *Provider) {
		p.minDuration = min
		p.maxDuration = max
	}
}

// WithCallTimeout bounds each AssumeRole round trip
func WithCallTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		p.callTimeout = timeout
	}
}

// NewProvider creates a Provider around an STS client
func NewProvider(client AssumeRoleAPI, opts ...Option) *Provider {
	p := &Provider{
		client:      client,
		minDuration: DefaultMinDurationSeconds,
		maxDuration: DefaultMaxDurationSeconds,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewProviderFromConfig creates a Provider using an STS client built from cfg
func NewProviderFromConfig(cfg aws.Config, opts ...Option) *Provider {
	return NewProvider(awssts.NewFromConfig(cfg), opts...)
}

// Issue assumes the role with an inline policy that only allows s3:PutObject
// under req.ObjectKeyPrefix. Cancelling ctx abandons the call.
func (p *Provider) Issue(ctx context.Context, req directupload.IssueRequest) (*directupload.TemporaryCredential, error) {
	if req.DurationSeconds < p.minDuration || req.DurationSeconds > p.maxDuration {
		return nil, &directupload.ConfigurationError{
			Field: "duration_seconds",
			Err:   fmt.Errorf("%w: %d not in [%d, %d]", directupload.ErrOutOfRange, req.DurationSeconds, p.minDuration, p.maxDuration),
		}
	}
	if req.RoleARN == "" {
		return nil, &directupload.ConfigurationError{Field: "role_arn", Err: directupload.ErrMissingValue}
	}
	if req.SessionName == "" {
		return nil, &directupload.ConfigurationError{Field: "role_session_name", Err: directupload.ErrMissingValue}
	}

	resource, err := directupload.ScopedResource(req.Bucket, req.ObjectKeyPrefix)
	if err != nil {
		return nil, err
	}
	inlinePolicy, err := SessionPolicy(resource)
	if err != nil {
		return nil, &directupload.SerializationError{Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	out, err := p.client.AssumeRole(callCtx, &awssts.AssumeRoleInput{
		RoleArn:         aws.String(req.RoleARN),
		RoleSessionName: aws.String(req.SessionName),
		DurationSeconds: aws.Int32(req.DurationSeconds),
		Policy:          aws.String(inlinePolicy),
	})
	if err != nil {
		return nil, &directupload.CredentialError{
			Op:        "assume_role",
			Retryable: isRetryable(ctx, err),
			Err:       redact("assume_role", err),
		}
	}

	creds := out.Credentials
	if creds == nil || aws.ToString(creds.AccessKeyId) == "" ||
		aws.ToString(creds.SecretAccessKey) == "" || aws.ToString(creds.SessionToken) == "" {
		return nil, &directupload.CredentialError{Op: "assume_role", Err: ErrEmptyCredentials}
	}

	return &directupload.TemporaryCredential{
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		ExpiresAt:       aws.ToTime(creds.Expiration),
	}, nil
}
