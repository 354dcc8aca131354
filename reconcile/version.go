package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/cqlharness/fleet"
)

// Version is a dotted release version such as 3.11.4.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "major[.minor[.patch]]". Anything after the first '-'
// (such as "-SNAPSHOT") is ignored.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Version{}, fmt.Errorf("cqlharness: empty version")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("cqlharness: invalid version %q", s)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	for _, d := range [3]int{v.Major - o.Major, v.Minor - o.Minor, v.Patch - o.Patch} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}

	return 0
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	return v.Compare(Version{Major: major, Minor: minor}) >= 0
}

// DefaultProtocolVersion returns the highest native protocol version the
// server release supports: 4 from 2.2, 3 from 2.1, 2 from 2.0, otherwise 1.
func DefaultProtocolVersion(v Version) int {
	switch {
	case v.AtLeast(2, 2):
		return 4
	case v.AtLeast(2, 1):
		return 3
	case v.AtLeast(2, 0):
		return 2
	default:
		return 1
	}
}

// ConfigurationOptions returns the node options set on a newly created
// cluster. Native transport is always enabled; user-defined functions from
// 2.2 and scripted ones from 3.0. An empty or unparsable version enables
// everything.
func ConfigurationOptions(version string) map[string]any {
	opts := map[string]any{fleet.OptStartNativeTransport: true}

	v, err := ParseVersion(version)
	if err != nil || v.AtLeast(2, 2) {
		opts[fleet.OptEnableUserDefinedFunctions] = true
	}
	if err != nil || v.AtLeast(3, 0) {
		opts[fleet.OptEnableScriptedUserDefinedFunctions] = true
	}

	return opts
}

// JVMArgs returns the JVM arguments for starting nodes. Protocol version 4
// and later get the custom-payload mirroring query handler.
func JVMArgs(protocolVersion int, extra ...string) []string {
	var args []string
	if protocolVersion >= 4 {
		args = append(args, fleet.CustomPayloadMirroringQueryHandlerFlag)
	}

	return append(args, extra...)
}
