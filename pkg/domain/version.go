package domain

import "fmt"

// Version is the (major, minor) pair that totally orders documents within a
// family. New versions always carry a strictly greater tuple than everything
// they supersede, so supersession chains cannot form a cycle.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// FirstVersion is where every new family starts.
var FirstVersion = Version{Major: 1, Minor: 0}

// Compare returns -1, 0 or 1 ordering v against other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		if v.Major < other.Major {
			return -1
		}
		return 1
	case v.Minor != other.Minor:
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// NextMinor is the spin-off target for a minor periodic-review update.
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// NextMajor resets minor to the family baseline.
func (v Version) NextMajor() Version {
	return Version{Major: v.Major + 1, Minor: 0}
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}
