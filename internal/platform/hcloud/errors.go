package hcloud

import (
	"errors"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// isResourceLocked reports errors worth retrying: the resource is busy with
// another action.
func isResourceLocked(err error) bool {
	return isHCloudErrorCode(err,
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
		hcloud.ErrorCodeResourceLocked,
		hcloud.ErrorCodeResourceUnavailable,
	)
}

// isInvalidParameter reports errors that no retry will fix.
func isInvalidParameter(err error) bool {
	return isHCloudErrorCode(err,
		hcloud.ErrorCodeNotFound,
		hcloud.ErrorCodeInvalidInput,
		hcloud.ErrorCodeInvalidServerType,
	)
}

func isHCloudErrorCode(err error, codes ...hcloud.ErrorCode) bool {
	if err == nil {
		return false
	}

	var hcloudErr hcloud.Error
	if errors.As(err, &hcloudErr) {
		for _, code := range codes {
			if hcloudErr.Code == code {
				return true
			}
		}
	}
	return false
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCodeNotFound)
}

// isResourceInUse reports deletes blocked by a dependent resource, such as a
// firewall still applied to a server that is shutting down.
func isResourceInUse(err error) bool {
	return isHCloudErrorCode(err, hcloud.ErrorCode("resource_in_use"), hcloud.ErrorCodeConflict)
}
