// Package directupload issues short-lived authorizations that let a browser
// POST a file straight to an S3 bucket, without the bytes passing through the
// application server.
//
// # Pipeline
//
// Each authorization runs the same steps:
//
//  1. assume the upload role with an inline policy allowing s3:PutObject only
//     under the requested key prefix (CredentialProvider)
//  2. build the POST policy document binding bucket, key prefix, ACL,
//     credential scope, security token, algorithm, date and size range (package policy)
//  3. sign the base64 policy with the SigV4 derived key (package sigv4)
//  4. assemble the browser payload (Assemble)
//
// The role identifier is resolved once by Start. Until then Authorize fails
// with ErrNotReady.
//
// # Basic Usage
//
//	svc, err := directupload.New(
//	    directupload.WithSettings(settings),
//	    directupload.WithCredentialProvider(provider),
//	    directupload.WithRoleResolver(resolver),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := svc.Start(ctx); err != nil {
//	    // fatal: do not serve requests
//	}
//	auth, err := svc.Authorize(ctx, directupload.AuthorizeRequest{Directory: "user123"})
//
// The browser then submits a multipart POST to auth.UploadURL with the form
// fields key, acl, policy, x-amz-credential, x-amz-security-token,
// x-amz-algorithm, x-amz-date, x-amz-signature and finally the file.
// Package form builds that field set.
package directupload
