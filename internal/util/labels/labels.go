package labels

// Standard tag keys.
const (
	// KeyCluster identifies which cluster a resource belongs to.
	KeyCluster = "@clusterous"

	// KeyRole identifies the role of an instance.
	KeyRole = "NodeType"

	// KeyName is the display name shown by the provider console.
	KeyName = "Name"

	// KeyAttached marks a borrowed volume while it is attached to a cluster.
	KeyAttached = "Attached"
)

// Reserved role values. Worker roles are chosen by the user.
const (
	RoleNAT            = "nat"
	RoleController     = "controller"
	RoleCentralLogging = "central-logging"
)

// IsReservedRole reports whether role is used by the infrastructure itself.
func IsReservedRole(role string) bool {
	switch role {
	case RoleNAT, RoleController, RoleCentralLogging:
		return true
	}
	return false
}

// TagBuilder provides a fluent interface for building resource tags.
type TagBuilder struct {
	tags map[string]string
}

// NewTagBuilder creates a new builder with the ownership tag pre-set.
func NewTagBuilder(clusterName string) *TagBuilder {
	return &TagBuilder{
		tags: map[string]string{
			KeyCluster: clusterName,
		},
	}
}

// WithName sets the display name.
func (tb *TagBuilder) WithName(name string) *TagBuilder {
	tb.tags[KeyName] = name
	return tb
}

// WithRole sets the role tag.
func (tb *TagBuilder) WithRole(role string) *TagBuilder {
	tb.tags[KeyRole] = role
	return tb
}

// Merge adds all tags from the provided map.
func (tb *TagBuilder) Merge(extra map[string]string) *TagBuilder {
	for k, v := range extra {
		tb.tags[k] = v
	}
	return tb
}

// Build returns a copy of the tags.
func (tb *TagBuilder) Build() map[string]string {
	result := make(map[string]string, len(tb.tags))
	for k, v := range tb.tags {
		result[k] = v
	}
	return result
}

// Owned returns the filter selecting every resource of a cluster.
func Owned(clusterName string) map[string]string {
	return map[string]string{KeyCluster: clusterName}
}

// OwnedWithRole returns the filter selecting a cluster's instances of one role.
func OwnedWithRole(clusterName, role string) map[string]string {
	return map[string]string{KeyCluster: clusterName, KeyRole: role}
}

// Matches reports whether tags contain every key/value of filter.
func Matches(tags, filter map[string]string) bool {
	for k, v := range filter {
		if tags[k] != v {
			return false
		}
	}
	return true
}
