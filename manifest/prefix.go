package manifest

import (
	"strings"
	"unicode"

	"github.com/nagini-lang/nagini/compiler"
)

// ToModuleName converts a dependency or project name to a module name
// segment: "my-app" -> "my_app", "MyApp" -> "my_app".
func ToModuleName(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || r == '.' || unicode.IsSpace(r):
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			prevLower = false
			continue
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if b.Len() == 0 && unicode.IsDigit(r) {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ValidPrefix reports whether p is a dotted sequence of identifiers that
// are not keywords.
func ValidPrefix(p string) bool {
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(p, ".") {
		if seg == "" || compiler.LookupKeyword(seg) != compiler.TokenIdentifier {
			return false
		}
		for i, r := range seg {
			if !(r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r))) {
				return false
			}
		}
	}
	return true
}

// reservedPrefixes are module names provided by the VM itself.
var reservedPrefixes = map[string]bool{
	"math":     true,
	"__main__": true,
	"builtins": true,
}

// IsReservedPrefix reports whether the root segment of prefix names a
// module the VM provides.
func IsReservedPrefix(prefix string) bool {
	root := prefix
	if idx := strings.IndexByte(prefix, '.'); idx >= 0 {
		root = prefix[:idx]
	}
	return reservedPrefixes[root]
}
