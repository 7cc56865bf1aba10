package provisioning

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/session"
	"github.com/imamik/clusterous/internal/util/labels"
	"github.com/imamik/clusterous/internal/util/naming"
)

// ValidationError represents a request validation error or warning.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" or "warning"
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError returns true if this is an error (not a warning).
func (ve ValidationError) IsError() bool {
	return ve.Severity == "error"
}

// PreflightPhase validates the request, makes sure no cluster of the same
// name is alive, prepares the registry bucket and records the cluster as
// active. It is the last phase without cloud side effects beyond the bucket.
type PreflightPhase struct{}

func NewPreflightPhase() *PreflightPhase {
	return &PreflightPhase{}
}

func (p *PreflightPhase) Name() string {
	return "preflight"
}

func (p *PreflightPhase) Provision(ctx *Context) error {
	if err := CheckRequest(ctx.Observer, ctx.Request); err != nil {
		return err
	}
	name := ctx.Request.ClusterName
	if err := checkActiveRecord(ctx.Session, name); err != nil {
		return err
	}

	live, err := ctx.Cloud.ListInstances(ctx, cloud.InstanceFilter{
		Tags:   labels.Owned(name),
		States: cloud.OwnedStates,
	})
	if err != nil {
		return errdefs.Provider("list instances", err)
	}
	if len(live) > 0 {
		return errdefs.Configf("a cluster named %q is already running (%d instances)", name, len(live))
	}

	if ctx.Registry != nil && ctx.Config.S3Bucket != "" {
		created, err := ctx.Registry.EnsureBucket(ctx, ctx.Config.S3Bucket)
		if err != nil {
			return errdefs.Provider("ensure registry bucket", err)
		}
		if created {
			LogResourceCreated(ctx.Observer, p.Name(), "bucket", ctx.Config.S3Bucket, ctx.Config.S3Bucket)
		}
	}

	// A record left by an earlier run of this cluster is replaced, not merged.
	if err := ctx.Session.Clear(); err != nil {
		return fmt.Errorf("failed to clear stale cluster record: %w", err)
	}
	if err := ctx.Session.Merge(map[string]any{
		session.KeyClusterName: name,
		session.KeyRunning:     false,
		session.KeyProvider:    ctx.Cloud.Name(),
	}); err != nil {
		return fmt.Errorf("failed to record active cluster: %w", err)
	}
	ctx.State.Recorded = true
	return nil
}

// checkActiveRecord refuses to replace the record of another cluster: its
// instances would keep running with nothing local pointing at them.
func checkActiveRecord(store *session.Store, name string) error {
	info, err := store.Load()
	switch {
	case errors.Is(err, errdefs.ErrNoActiveCluster):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read active cluster: %w", err)
	case info.ClusterName != name:
		return errdefs.Configf("cluster %q is still active, terminate it before creating %q", info.ClusterName, name)
	}
	return nil
}

// CheckRequest logs validation warnings and returns a configuration error
// listing every validation error.
func CheckRequest(observer Observer, req *Request) error {
	var errs []string
	for _, ve := range ValidateRequest(req) {
		if ve.IsError() {
			errs = append(errs, ve.Error())
			continue
		}
		observer.Event(Event{Type: EventValidationWarning, Phase: "preflight", Message: ve.Message})
		observer.Printf("[Preflight] WARNING: %s", ve.Message)
	}
	if len(errs) > 0 {
		return errdefs.Configf("request validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// ValidateRequest runs all checks and returns any errors or warnings.
func ValidateRequest(req *Request) []ValidationError {
	if req == nil {
		return []ValidationError{{Field: "Request", Message: "request is required", Severity: "error"}}
	}
	var errs []ValidationError

	if err := naming.ValidateClusterName(req.ClusterName); err != nil {
		errs = append(errs, ValidationError{Field: "ClusterName", Message: err.Error(), Severity: "error"})
	}

	if len(req.NodeGroups) == 0 {
		errs = append(errs, ValidationError{
			Field:    "NodeGroups",
			Message:  "the cluster has no worker nodes, components can only run on the controller",
			Severity: "warning",
		})
	}

	seen := map[string]bool{}
	for i, g := range req.NodeGroups {
		field := fmt.Sprintf("NodeGroups[%d]", i)
		switch {
		case g.Role == "":
			errs = append(errs, ValidationError{Field: field + ".Role", Message: "role is required", Severity: "error"})
		case labels.IsReservedRole(g.Role):
			errs = append(errs, ValidationError{
				Field:    field + ".Role",
				Message:  fmt.Sprintf("role %q is reserved", g.Role),
				Severity: "error",
			})
		case seen[g.Role]:
			errs = append(errs, ValidationError{
				Field:    field + ".Role",
				Message:  fmt.Sprintf("role %q is declared twice", g.Role),
				Severity: "error",
			})
		}
		seen[g.Role] = true

		if g.InstanceType == "" {
			errs = append(errs, ValidationError{Field: field + ".InstanceType", Message: "instance type is required", Severity: "error"})
		}
		if g.Count <= 0 {
			errs = append(errs, ValidationError{Field: field + ".Count", Message: "count must be greater than 0", Severity: "error"})
		}
	}

	if req.LoggingLevel < 0 || req.LoggingLevel > 3 {
		errs = append(errs, ValidationError{
			Field:    "LoggingLevel",
			Message:  fmt.Sprintf("logging level must be between 0 and 3, got %d", req.LoggingLevel),
			Severity: "error",
		})
	}

	if req.VolumeSizeGB < 0 {
		errs = append(errs, ValidationError{Field: "VolumeSizeGB", Message: "volume size must not be negative", Severity: "error"})
	}
	if req.VolumeID != "" && req.VolumeSizeGB > 0 && req.VolumeSizeGB != config.SharedVolumeGB {
		errs = append(errs, ValidationError{
			Field:    "VolumeSizeGB",
			Message:  "volume size is ignored when an existing volume is used",
			Severity: "warning",
		})
	}

	return errs
}
