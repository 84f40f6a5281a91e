package authz

import "strings"

// Wildcard is the canonical marker substituted for identifier-like path
// segments, so one registered permission covers a family of routes.
const Wildcard = "?"

// SegmentMatcher classifies a single path segment. Matchers are consulted
// in registration order; the first match wins and the segment is replaced
// by Wildcard.
type SegmentMatcher struct {
	Name  string
	Match func(segment string) bool
}

// NumericSegment matches segments that are a non-empty sequence of digits.
func NumericSegment() SegmentMatcher {
	return SegmentMatcher{
		Name: "numeric",
		Match: func(segment string) bool {
			if segment == "" {
				return false
			}
			for i := 0; i < len(segment); i++ {
				if segment[i] < '0' || segment[i] > '9' {
					return false
				}
			}
			return true
		},
	}
}

// HexObjectIDSegment matches 24-character hexadecimal segments, the
// document-store surrogate key format.
func HexObjectIDSegment() SegmentMatcher {
	return SegmentMatcher{
		Name: "hex24",
		Match: func(segment string) bool {
			if len(segment) != 24 {
				return false
			}
			for i := 0; i < len(segment); i++ {
				c := segment[i]
				switch {
				case c >= '0' && c <= '9':
				case c >= 'a' && c <= 'f':
				case c >= 'A' && c <= 'F':
				default:
					return false
				}
			}
			return true
		},
	}
}

// Normalizer canonicalizes request paths into permission-matchable
// patterns. Normalize is idempotent: Wildcard segments match no default
// matcher and pass through unchanged.
type Normalizer struct {
	matchers []SegmentMatcher
}

// NewNormalizer builds a normalizer with the default matcher set (numeric,
// hex-24). Additional matchers may be supplied or registered later.
func NewNormalizer(extra ...SegmentMatcher) *Normalizer {
	n := &Normalizer{matchers: []SegmentMatcher{NumericSegment(), HexObjectIDSegment()}}
	n.matchers = append(n.matchers, extra...)
	return n
}

// Register appends a matcher to the ordered list.
func (n *Normalizer) Register(m SegmentMatcher) {
	if m.Match == nil {
		return
	}
	n.matchers = append(n.matchers, m)
}

// Normalize replaces every identifier-like path segment with Wildcard.
func (n *Normalizer) Normalize(path string) string {
	if path == "" {
		return path
	}
	segments := strings.Split(path, "/")
	changed := false
	for i, segment := range segments {
		for _, m := range n.matchers {
			if m.Match(segment) {
				segments[i] = Wildcard
				changed = true
				break
			}
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segments, "/")
}
