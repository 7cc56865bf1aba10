package hcloud

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/util/labels"
)

const labelPrefix = "clusterous.io/"

var keyToLabel = map[string]string{
	labels.KeyCluster:  labelPrefix + "cluster",
	labels.KeyRole:     labelPrefix + "role",
	labels.KeyName:     labelPrefix + "name",
	labels.KeyAttached: labelPrefix + "attached",
}

var labelToKey = func() map[string]string {
	m := make(map[string]string, len(keyToLabel))
	for k, v := range keyToLabel {
		m[v] = k
	}
	return m
}()

// Pseudo-resource bookkeeping keys on networks.
const (
	labelGateway      = labelPrefix + "gateway"
	labelSubnetPrefix = labelPrefix + "subnet-"
	labelRTBPrefix    = labelPrefix + "rtb-"
	labelRTBAssoc     = "-assoc"
	labelNetwork      = labelPrefix + "network"
)

var labelValueRe = regexp.MustCompile(`^([a-zA-Z0-9]([-_.a-zA-Z0-9]{0,61}[a-zA-Z0-9])?)?$`)

// toLabels translates tags into Hetzner labels.
func toLabels(tags map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if !labelValueRe.MatchString(v) {
			return nil, errdefs.Configf("tag %s=%q is not a valid hcloud label value", k, v)
		}
		if l, ok := keyToLabel[k]; ok {
			out[l] = v
			continue
		}
		out[labelPrefix+sanitizeKey(k)] = v
	}
	return out, nil
}

// fromLabels is the inverse of toLabels. Bookkeeping labels are dropped.
func fromLabels(l map[string]string) map[string]string {
	out := make(map[string]string, len(l))
	for k, v := range l {
		if key, ok := labelToKey[k]; ok {
			out[key] = v
			continue
		}
		if isBookkeeping(k) || !strings.HasPrefix(k, labelPrefix) {
			continue
		}
		out[strings.TrimPrefix(k, labelPrefix)] = v
	}
	return out
}

func isBookkeeping(k string) bool {
	return k == labelGateway || k == labelNetwork ||
		strings.HasPrefix(k, labelSubnetPrefix) || strings.HasPrefix(k, labelRTBPrefix)
}

func sanitizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, k)
}

// selector builds a label selector matching every tag.
func selector(tags map[string]string) (string, error) {
	l, err := toLabels(tags)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(l))
	for k, v := range l {
		parts = append(parts, k+"="+v)
	}
	slices.Sort(parts)
	return strings.Join(parts, ","), nil
}

// ownerSelector keeps only the cluster tag. Pseudo-resources are filtered
// client-side after their owning network is found.
func ownerSelector(tags map[string]string) (string, error) {
	owner, ok := tags[labels.KeyCluster]
	if !ok {
		return "", nil
	}
	return selector(map[string]string{labels.KeyCluster: owner})
}

// Resource IDs carry a kind prefix so mixed ID lists can be dispatched.

const (
	prefixNetwork  = "net-"
	prefixSubnet   = "subnet-"
	prefixGateway  = "gw-"
	prefixRTB      = "rtb-"
	prefixFirewall = "fw-"
	prefixServer   = "srv-"
	prefixVolume   = "vol-"
)

func formatID(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func parseID(prefix, id string) (int64, error) {
	raw, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0, fmt.Errorf("invalid %sID %q", prefix, id)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %sID %q: %w", prefix, id, err)
	}
	return n, nil
}

// cidrKey turns 10.2.0.0/24 into 10.2.0.0-24, a valid label key suffix.
func cidrKey(cidr string) string {
	return strings.ReplaceAll(cidr, "/", "-")
}

func cidrFromKey(key string) string {
	i := strings.LastIndex(key, "-")
	if i < 0 {
		return key
	}
	return key[:i] + "/" + key[i+1:]
}

// subnetID is subnet-<network>-<ip>-<bits>.
func subnetID(networkID int64, cidr string) string {
	return fmt.Sprintf("%s%d-%s", prefixSubnet, networkID, cidrKey(cidr))
}

func parseSubnetID(id string) (int64, string, error) {
	raw, ok := strings.CutPrefix(id, prefixSubnet)
	if !ok {
		return 0, "", fmt.Errorf("invalid subnet ID %q", id)
	}
	netPart, cidrPart, ok := strings.Cut(raw, "-")
	if !ok {
		return 0, "", fmt.Errorf("invalid subnet ID %q", id)
	}
	n, err := strconv.ParseInt(netPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid subnet ID %q: %w", id, err)
	}
	return n, cidrFromKey(cidrPart), nil
}

// rtbID is rtb-<network>-<index>.
func rtbID(networkID int64, index int) string {
	return fmt.Sprintf("%s%d-%d", prefixRTB, networkID, index)
}

func parseRTBID(id string) (int64, int, error) {
	raw, ok := strings.CutPrefix(id, prefixRTB)
	if !ok {
		return 0, 0, fmt.Errorf("invalid route table ID %q", id)
	}
	netPart, idxPart, ok := strings.Cut(raw, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid route table ID %q", id)
	}
	n, err := strconv.ParseInt(netPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid route table ID %q: %w", id, err)
	}
	idx, err := strconv.Atoi(idxPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid route table ID %q: %w", id, err)
	}
	return n, idx, nil
}
