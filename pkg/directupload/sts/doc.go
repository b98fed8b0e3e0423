// Package sts obtains prefix-scoped temporary credentials for browser uploads.
//
// Provider assumes the upload role with an inline session policy that grants
// s3:PutObject on arn:aws:s3:::{bucket}/{prefix}* and nothing else, so a
// leaked credential cannot write outside the upload directory. RoleResolver
// turns the configured role name into its ARN once at startup.
//
// Errors are reported as directupload.CredentialError (Retryable for
// timeouts, transport and throttling failures) and
// directupload.RoleResolutionError. Provider messages are reduced to their
// error code because they echo role ARNs and account IDs.
package sts
