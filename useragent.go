package identity

import (
	"strconv"
	"strings"
)

// UserAgent is the subset of client identification the refresh check needs.
type UserAgent struct {
	Family string
	Major  int
	Minor  int
	Known  bool
}

// browser product tokens in priority order. Chromium UAs also carry
// "Safari" and "Mozilla" tokens, so order matters.
var browserFamilies = []string{"Edg", "EdgA", "Edge", "OPR", "Opera", "Chrome", "CriOS", "Firefox", "FxiOS"}

// ParseUserAgent extracts the browser family and version from a raw
// User-Agent header. Unrecognized agents return Known=false.
func ParseUserAgent(raw string) UserAgent {
	products := parseProducts(raw)
	if len(products) == 0 {
		return UserAgent{}
	}

	for _, family := range browserFamilies {
		if version, ok := products[family]; ok {
			ua := versionedAgent(canonicalFamily(family), version)
			if ua.Known {
				return ua
			}
		}
	}

	// Real Safari carries the version in a separate Version/x.y token.
	if _, ok := products["Safari"]; ok {
		if version, ok := products["Version"]; ok {
			return versionedAgent("Safari", version)
		}
	}

	return UserAgent{}
}

// CompatibleUserAgents decides whether a refresh request may proceed. If
// either agent is unrecognized the raw strings must match byte for byte;
// otherwise both must be the same browser family and the new version must
// not be older than the one that created the token.
func CompatibleUserAgents(original, current string) bool {
	oldUA := ParseUserAgent(original)
	newUA := ParseUserAgent(current)

	if !oldUA.Known || !newUA.Known {
		return original == current
	}

	if oldUA.Family != newUA.Family {
		return false
	}

	if newUA.Major != oldUA.Major {
		return newUA.Major > oldUA.Major
	}

	return newUA.Minor >= oldUA.Minor
}

func parseProducts(raw string) map[string]string {
	out := map[string]string{}
	depth := 0

	for _, field := range strings.Fields(raw) {
		// skip platform details inside parentheses
		depth += strings.Count(field, "(") - strings.Count(field, ")")
		if depth > 0 || strings.Contains(field, ")") {
			continue
		}

		name, version, ok := strings.Cut(field, "/")
		if !ok || name == "" {
			continue
		}
		if _, exists := out[name]; !exists {
			out[name] = version
		}
	}

	return out
}

func versionedAgent(family, version string) UserAgent {
	parts := strings.Split(version, ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return UserAgent{}
	}

	minor := 0
	if len(parts) > 1 {
		if v, err := strconv.Atoi(parts[1]); err == nil {
			minor = v
		}
	}

	return UserAgent{Family: family, Major: major, Minor: minor, Known: true}
}

func canonicalFamily(token string) string {
	switch token {
	case "Edg", "EdgA", "Edge":
		return "Edge"
	case "OPR", "Opera":
		return "Opera"
	case "CriOS":
		return "Chrome"
	case "FxiOS":
		return "Firefox"
	default:
		return token
	}
}
