package sigv4

import (
	"encoding/hex"
	"fmt"
)

// Reference key-derivation vector from the AWS General Reference
// ("Examples of how to derive a signing key for Signature Version 4").
const (
	selfTestSecret  = "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY"
	selfTestDate    = "20120215"
	selfTestRegion  = "us-east-1"
	selfTestService = "iam"
	selfTestSigning = "f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d"
)

// SelfTest checks that the runtime's HMAC-SHA256 reproduces the published
// signing key. Run it once at startup; a failure means the crypto provider
// is broken and the process must not serve requests.
func SelfTest() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSelfTestFailed, r)
		}
	}()

	got := hex.EncodeToString(DeriveSigningKey(selfTestSecret, selfTestDate, selfTestRegion, selfTestService))
	if got != selfTestSigning {
		return fmt.Errorf("%w: derived key does not match reference vector", ErrSelfTestFailed)
	}
	return nil
}
