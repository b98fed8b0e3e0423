package directupload

import (
	"fmt"
	"strings"
)

// URLStyle selects how the POST target is addressed
type URLStyle string

const (
	// URLStyleLegacy addresses https://{bucket}.s3-{region}.amazonaws.com/
	URLStyleLegacy URLStyle = "legacy"

	// URLStyleVirtual addresses https://{bucket}.s3.{region}.amazonaws.com/
	URLStyleVirtual URLStyle = "virtual"

	// URLStylePath addresses {endpoint}/{bucket}/ for S3-compatible services
	URLStylePath URLStyle = "path"
)

// UploadURL returns the POST target for browser uploads. An empty style means legacy.
func UploadURL(style URLStyle, bucket, region, endpoint string) (string, error) {
	switch style {
	case "", URLStyleLegacy:
		return fmt.Sprintf("https://%s.s3-%s.amazonaws.com/", bucket, region), nil
	case URLStyleVirtual:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", bucket, region), nil
	case URLStylePath:
		if endpoint == "" {
			return "", &ConfigurationError{Field: "endpoint", Err: fmt.Errorf("%w for path-style upload URLs", ErrMissingValue)}
		}
		return strings.TrimRight(endpoint, "/") + "/" + bucket + "/", nil
	default:
		return "", &ConfigurationError{Field: "upload_url_style", Err: fmt.Errorf("unsupported style %q", style)}
	}
}
