// Package cloud defines the provider-agnostic resource model and the
// capability interfaces the provisioning code is written against.
//
// A backend implements [Provider] by composing [NetworkAPI], [SecurityAPI],
// [InstanceAPI] and [VolumeAPI]. Lookups take a tag filter and return every
// match; an empty result is not an error. Tags are plain string maps using
// the keys from the labels package, and backends translate them to whatever
// the provider accepts.
package cloud
