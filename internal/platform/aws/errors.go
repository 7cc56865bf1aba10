package aws

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/imamik/clusterous/internal/platform/cloud"
)

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsNotFound reports EC2 "*.NotFound" errors.
func IsNotFound(err error) bool {
	return strings.HasSuffix(errorCode(err), ".NotFound")
}

// notVisible marks a NotFound for an id EC2 just returned. Reads lag
// behind RunInstances for a few seconds.
func notVisible(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, cloud.ErrNotVisible, err)
}

// isDependencyViolation reports a delete refused because something still
// references the resource. These clear once the dependents are gone.
func isDependencyViolation(err error) bool {
	code := errorCode(err)
	return code == "DependencyViolation" || code == "IncorrectState" || code == "VolumeInUse"
}

func isRouteAlreadyExists(err error) bool {
	return errorCode(err) == "RouteAlreadyExists"
}

func isDuplicatePermission(err error) bool {
	return errorCode(err) == "InvalidPermission.Duplicate"
}

func isAlreadyAssociated(err error) bool {
	return errorCode(err) == "Resource.AlreadyAssociated"
}
