// Package patch replaces the managed region of an externally owned file.
//
// A file embeds exactly one managed region between a begin/end sentinel pair;
// everything outside the markers is hand-authored and never touched. Apply is
// single-shot and idempotent: applying the same fragment twice yields the
// same text as applying it once, and a different fragment fully replaces the
// prior region with no residue.
//
// Callers patching the same target concurrently must serialize externally;
// Apply operates on in-memory text and knows nothing about files.
package patch

import (
	"fmt"
	"strings"
)

// Marker is the sentinel pair delimiting the managed region.
type Marker struct {
	Begin string
	End   string
}

// NoMarkerFoundError reports a missing sentinel.
type NoMarkerFoundError struct {
	Marker  Marker
	Missing string // the absent sentinel
}

func (e *NoMarkerFoundError) Error() string {
	return fmt.Sprintf("patch: marker %q not found in target", e.Missing)
}

// MalformedMarkerError reports a sentinel pair that cannot delimit a single
// region: a duplicated sentinel, begin after end, or a fragment that would
// itself introduce a sentinel.
type MalformedMarkerError struct {
	Marker Marker
	Reason string
}

func (e *MalformedMarkerError) Error() string {
	return fmt.Sprintf("patch: malformed marker pair: %s", e.Reason)
}

// Apply replaces the text strictly between m.Begin and m.End in existing
// with fragment, placing the fragment on its own lines. Text outside the
// markers is returned untouched.
func Apply(existing, fragment string, m Marker) (string, error) {
	if m.Begin == "" || m.End == "" {
		return "", &MalformedMarkerError{Marker: m, Reason: "empty sentinel"}
	}
	begins := sentinelOccurrences(existing, m.Begin, m.End)
	ends := sentinelOccurrences(existing, m.End, m.Begin)
	if len(begins) > 1 {
		return "", &MalformedMarkerError{Marker: m, Reason: fmt.Sprintf("begin marker %q appears more than once", m.Begin)}
	}
	if len(ends) > 1 {
		return "", &MalformedMarkerError{Marker: m, Reason: fmt.Sprintf("end marker %q appears more than once", m.End)}
	}
	if len(begins) == 0 {
		return "", &NoMarkerFoundError{Marker: m, Missing: m.Begin}
	}
	if len(ends) == 0 {
		return "", &NoMarkerFoundError{Marker: m, Missing: m.End}
	}
	begin, end := begins[0], ends[0]
	if end < begin+len(m.Begin) {
		return "", &MalformedMarkerError{Marker: m, Reason: "begin marker appears after end marker"}
	}
	// A fragment containing a sentinel would leave the target unpatchable
	// (and break idempotence); reject it up front.
	if strings.Contains(fragment, m.Begin) || strings.Contains(fragment, m.End) {
		return "", &MalformedMarkerError{Marker: m, Reason: "fragment contains a marker sentinel"}
	}

	head := existing[:begin+len(m.Begin)]
	tail := existing[end:]
	return head + "\n" + fragment + "\n" + tail, nil
}

// occurrences returns the start index of every non-overlapping occurrence of
// needle in s, in order.
func occurrences(s, needle string) []int {
	var idxs []int
	for from := 0; ; {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return idxs
		}
		idxs = append(idxs, from+i)
		from += i + len(needle)
	}
}

// sentinelOccurrences returns the occurrences of needle that stand on their
// own. When needle is a substring of the other sentinel, matches that fall
// inside an occurrence of other are part of that sentinel, not a duplicate.
func sentinelOccurrences(s, needle, other string) []int {
	occ := occurrences(s, needle)
	if needle == other || !strings.Contains(other, needle) {
		return occ
	}
	spans := occurrences(s, other)
	kept := occ[:0]
	for _, i := range occ {
		inside := false
		for _, j := range spans {
			if i >= j && i+len(needle) <= j+len(other) {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, i)
		}
	}
	return kept
}
