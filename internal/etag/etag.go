package etag

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Generate returns a strong entity tag for a serialized representation.
func Generate(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// Match reports whether an If-Match header admits the current tag.
// An empty header admits everything.
func Match(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return true
	}
	return matches(header, current, false)
}

// NoneMatch reports whether an If-None-Match header lets the request proceed,
// that is no listed tag equals the current one. Weak comparison is used.
func NoneMatch(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return true
	}
	return !matches(header, current, true)
}

func matches(header, current string, weak bool) bool {
	if current == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if weak {
			candidate = strings.TrimPrefix(candidate, "W/")
			if candidate == strings.TrimPrefix(current, "W/") {
				return true
			}
			continue
		}
		if candidate == current {
			return true
		}
	}
	return false
}
