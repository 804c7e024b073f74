package class

import (
	"strings"
	"unicode"
)

// Well-known virtual method IDs, keyed by the Go method name that overrides them.
var wellKnown = map[string]string{
	"Ready":          "_ready",
	"Process":        "_process",
	"PhysicsProcess": "_physics_process",
	"EnterTree":      "_enter_tree",
	"ExitTree":       "_exit_tree",
	"Input":          "_input",
	"Notification":   "_notification",
	"ToString":       "_to_string",
}

// VirtualFor returns the virtual method ID a Go method name overrides.
func VirtualFor(goMethod string) (string, bool) {
	v, ok := wellKnown[goMethod]
	return v, ok
}

var reserved = map[string]bool{
	"script":      true,
	"class":       true,
	"instance_id": true,
	"self":        true,
}

// Reserved reports whether a field name collides with a host-owned property.
func Reserved(name string) bool {
	return reserved[name] || strings.HasPrefix(name, "__")
}

// SnakeCase converts a Go identifier to the default host field name, keeping
// acronyms together:
// "HitPoints" -> "hit_points", "MaxHP" -> "max_hp", "HTTPPort" -> "http_port".
func SnakeCase(s string) string {
	return splitWords(s, '_')
}

// kebabCase converts snake_case or CamelCase to the kebab-case WIT identifiers use.
func kebabCase(s string) string {
	s = strings.TrimLeft(s, "_")
	if strings.ContainsRune(s, '_') {
		return strings.ReplaceAll(strings.ToLower(s), "_", "-")
	}
	return splitWords(s, '-')
}

func splitWords(s string, sep byte) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if !unicode.IsUpper(r) {
			result.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// last capital before a lowercase run starts the next word
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			result.WriteByte(sep)
		}
		for j := i; j < end; j++ {
			result.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}

	return result.String()
}
