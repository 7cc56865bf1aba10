package wizard

import "errors"

// Validation errors for the interactive wizard.
var (
	errValueRequired   = errors.New("a value is required")
	errKeyFileMissing  = errors.New("key file does not exist")
	errBucketInvalid   = errors.New("bucket name must be 3-63 lowercase alphanumeric characters, dots or hyphens")
	errCIDRRequired    = errors.New("CIDR is required")
	errCIDRInvalid     = errors.New("invalid CIDR format (expected: x.x.x.x/16)")
	errUnknownProvider = errors.New("unknown provider")
)
