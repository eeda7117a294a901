// Package pep425 implements PEP 425 -- Compatibility Tags for Built Distributions.
//
// https://www.python.org/dev/peps/pep-0425/
package pep425

import (
	"fmt"
	"strings"
)

type Tag struct {
	Python   string
	ABI      string
	Platform string
}

// Universal is the tag of a pure-Python distribution that runs anywhere.
func Universal() Tag {
	return Tag{Python: "py3", ABI: "none", Platform: "any"}
}

func (t Tag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// ParseTag parses a "python-abi-platform" triple.  The individual components
// never contain dashes (platform tags use underscores), so exactly two dashes
// are required.
func ParseTag(str string) (Tag, error) {
	parts := strings.Split(str, "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Tag{}, fmt.Errorf("invalid platform tag: %q", str)
	}
	return Tag{Python: parts[0], ABI: parts[1], Platform: parts[2]}, nil
}

// IsPure reports whether the tag denotes a pure-Python distribution
// (platform "any", ABI "none").
func (t Tag) IsPure() bool {
	return t.Platform == "any" && t.ABI == "none"
}

// Family buckets a tag's platform into one of the mutually exclusive OS
// families.  "any" is its own bucket and is compatible with everything.
func (t Tag) Family() string {
	switch {
	case t.Platform == "any":
		return "any"
	case strings.HasPrefix(t.Platform, "linux"),
		strings.HasPrefix(t.Platform, "manylinux"),
		strings.HasPrefix(t.Platform, "musllinux"):
		return "linux"
	case strings.HasPrefix(t.Platform, "macosx"):
		return "macosx"
	case strings.HasPrefix(t.Platform, "win"):
		return "win"
	default:
		return "other"
	}
}

// Specificity scores how restrictive a tag is; higher scores are more
// specific.  The platform component dominates, then the ABI, then the Python
// implementation, so that cp311-cp311-manylinux_2_17_x86_64 outranks
// cp311-abi3-manylinux_2_17_x86_64 outranks py3-none-manylinux_2_17_x86_64.
func (t Tag) Specificity() int {
	score := 0

	switch t.Family() {
	case "any":
		// 0
	case "other":
		score += 5
	default:
		score += 10
	}

	switch t.ABI {
	case "none":
		// 0
	case "abi3":
		score += 5
	default:
		score += 10
	}

	switch {
	case strings.HasPrefix(t.Python, "py"):
		// 0
	case strings.HasPrefix(t.Python, "cp"):
		score += 5
	default:
		score += 3
	}

	return score
}

// Compatible reports whether a distribution tagged 't' can be installed in an
// environment requesting tag 'want'.  A pure-universal distribution is
// compatible with any request; otherwise each of the three components must
// match, with "none"/"any" acting as wildcards on either side.
func (t Tag) Compatible(want Tag) bool {
	if t.IsPure() {
		return true
	}
	match := func(a, b string) bool {
		return a == b || a == "any" || b == "any" || a == "none" || b == "none"
	}
	return match(t.Python, want.Python) &&
		match(t.ABI, want.ABI) &&
		match(t.Platform, want.Platform)
}

// CheckFamilies returns an error if the tags span two or more mutually
// exclusive platform families; the error lists the offending families.
func CheckFamilies(tags []Tag) error {
	seen := make(map[string]struct{})
	for _, tag := range tags {
		family := tag.Family()
		if family == "any" {
			continue
		}
		seen[family] = struct{}{}
	}
	if len(seen) <= 1 {
		return nil
	}
	families := make([]string, 0, len(seen))
	for _, family := range []string{"linux", "macosx", "win", "other"} {
		if _, ok := seen[family]; ok {
			families = append(families, family)
		}
	}
	return fmt.Errorf("incompatible platform families: %s", strings.Join(families, ", "))
}

// MostRestrictive picks the effective tag for a set of distributions that
// must all load into one process: universal if everything is pure, otherwise
// the platform-specific tag with the highest specificity score.  Ties are
// broken by tag-string ordering so the result is stable across runs.
func MostRestrictive(tags []Tag) Tag {
	best := Universal()
	bestScore := -1
	for _, tag := range tags {
		if tag.IsPure() {
			continue
		}
		score := tag.Specificity()
		if score > bestScore || (score == bestScore && tag.String() < best.String()) {
			best = tag
			bestScore = score
		}
	}
	if bestScore < 0 {
		return Universal()
	}
	return best
}
