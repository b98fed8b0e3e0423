package sts

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/tendant/direct-upload/pkg/directupload"
)

// GetRoleAPI is the subset of the IAM client used by RoleResolver
type GetRoleAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
}

// RoleResolver looks up a role ARN from its name through IAM
type RoleResolver struct {
	client  GetRoleAPI
	timeout time.Duration
}

// NewRoleResolver creates a RoleResolver around an IAM client
func NewRoleResolver(client GetRoleAPI, timeout time.Duration) *RoleResolver {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &RoleResolver{client: client, timeout: timeout}
}

// NewRoleResolverFromConfig creates a RoleResolver using an IAM client built from cfg
func NewRoleResolverFromConfig(cfg aws.Config, timeout time.Duration) *RoleResolver {
	return NewRoleResolver(iam.NewFromConfig(cfg), timeout)
}

// ResolveRole returns the ARN of roleName
func (r *RoleResolver) ResolveRole(ctx context.Context, roleName string) (string, error) {
	if roleName == "" {
		return "", &directupload.ConfigurationError{Field: "role_name", Err: directupload.ErrMissingValue}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.client.GetRole(callCtx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
	if err != nil {
		return "", &directupload.RoleResolutionError{Err: redact("get_role", err)}
	}
	if out.Role == nil || aws.ToString(out.Role.Arn) == "" {
		return "", &directupload.RoleResolutionError{Err: ErrEmptyRole}
	}
	return aws.ToString(out.Role.Arn), nil
}
