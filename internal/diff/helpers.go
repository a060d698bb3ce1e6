package diff

import (
	"strconv"
	"strings"
)

// markerPath returns the path of a file section marker such as
// "diff --git a/x b/x", taken from the b/ side and without its side prefix.
// Paths may contain blanks, and C-quoted paths are decoded.
func markerPath(line string) string {
	rest := strings.TrimPrefix(line, "diff ")
	// skip the "--git" style flag
	end := strings.IndexAny(rest, " \t")
	if end < 0 {
		return ""
	}
	rest = strings.TrimLeft(rest[end:], " \t")
	if rest == "" {
		return ""
	}

	if rest[0] == '"' {
		first, remainder := quotedToken(rest)
		remainder = strings.TrimLeft(remainder, " \t")
		if remainder == "" {
			return normalizePath(first)
		}
		if remainder[0] == '"' {
			second, _ := quotedToken(remainder)
			return normalizePath(second)
		}
		return normalizePath(remainder)
	}

	if i := strings.Index(rest, ` "`); i >= 0 && strings.HasSuffix(rest, `"`) {
		second, _ := quotedToken(rest[i+1:])
		return normalizePath(second)
	}
	return splitSides(rest)
}

// splitSides picks the new-side path out of "a/X b/Y". Identical sides are
// split in the middle so blanks inside X survive.
func splitSides(rest string) string {
	if len(rest)%2 == 1 {
		half := len(rest) / 2
		if rest[half] == ' ' && normalizePath(rest[:half]) == normalizePath(rest[half+1:]) {
			return normalizePath(rest[half+1:])
		}
	}
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return rest[i+len(" b/"):]
	}
	return normalizePath(rest)
}

// quotedToken decodes the C-style quoted token git emits for unusual paths,
// octal escapes included, and returns it with the text after it.
func quotedToken(s string) (string, string) {
	escaped := false
	for i := 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			if decoded, err := strconv.Unquote(s[:i+1]); err == nil {
				return decoded, s[i+1:]
			}
			return s[1:i], s[i+1:]
		}
	}
	return strings.TrimPrefix(s, `"`), ""
}

func normalizePath(token string) string {
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(token, prefix) {
			return token[len(prefix):]
		}
	}
	return token
}
