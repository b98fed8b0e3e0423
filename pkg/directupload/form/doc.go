// Package form reproduces the browser side of a direct upload.
//
// Fields lists the multipart POST fields derived from a
// directupload.UploadAuthorization, Check evaluates them against the signed
// policy the way S3 does, and Client posts a file with retries and progress
// reporting. It is used by the CLI and by tests; browsers build the same form
// from the JSON payload.
package form
