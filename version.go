package capnpcompat

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Snapshot document format versions understood by DecodeDocument.
const (
	MinSupportedFormat = "0.1.0"
	MaxTestedFormat    = "0.2.0"
)

// SupportedFormatRange returns the minimum and maximum document format versions this package reads.
func SupportedFormatRange() (min, max string) {
	return MinSupportedFormat, MaxTestedFormat
}

var (
	minSupportedSemver semver
	maxTestedSemver    semver
)

func init() {
	var err error
	minSupportedSemver, err = parseSemverStrict(MinSupportedFormat)
	if err != nil {
		panic(fmt.Sprintf("capnpcompat: invalid MinSupportedFormat %q: %v", MinSupportedFormat, err))
	}
	maxTestedSemver, err = parseSemverStrict(MaxTestedFormat)
	if err != nil {
		panic(fmt.Sprintf("capnpcompat: invalid MaxTestedFormat %q: %v", MaxTestedFormat, err))
	}
}

// IsSupportedFormat reports whether a document format version is within the supported range.
func IsSupportedFormat(v string) (bool, error) {
	parsed, err := parseSemverStrict(v)
	if err != nil {
		return false, err
	}
	return compareSemver(parsed, minSupportedSemver) >= 0 && compareSemver(parsed, maxTestedSemver) <= 0, nil
}

type semver struct {
	major int
	minor int
	patch int
}

func parseSemverStrict(v string) (semver, error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) != 3 {
		return semver{}, fmt.Errorf("invalid semver: %q", v)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || strings.HasPrefix(p, "+") {
			return semver{}, fmt.Errorf("invalid semver: %q", v)
		}
		nums[i] = n
	}
	return semver{major: nums[0], minor: nums[1], patch: nums[2]}, nil
}

func compareSemver(a, b semver) int {
	if a.major != b.major {
		return cmp.Compare(a.major, b.major)
	}
	if a.minor != b.minor {
		return cmp.Compare(a.minor, b.minor)
	}
	return cmp.Compare(a.patch, b.patch)
}
