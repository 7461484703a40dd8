package match

import "strings"

// WildcardPattern is a compiled '*' wildcard matcher.
// Params: internal split parts and anchor flags.
// Returns: reusable matcher for many Match calls.
type WildcardPattern struct {
	parts         []string
	anchoredStart bool
	anchoredEnd   bool
	matchAll      bool
}

// CompileWildcard compiles pattern into reusable wildcard matcher.
// Params: pattern may contain '*' wildcards.
// Returns: compiled matcher and false when pattern is empty.
func CompileWildcard(pattern string) (WildcardPattern, bool) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return WildcardPattern{}, false
	}
	if p == "*" {
		return WildcardPattern{matchAll: true}, true
	}

	return WildcardPattern{
		parts:         strings.Split(p, "*"),
		anchoredStart: !strings.HasPrefix(p, "*"),
		anchoredEnd:   !strings.HasSuffix(p, "*"),
	}, true
}

// Match evaluates compiled wildcard pattern against value.
// Params: value is compared text.
// Returns: true on pattern match.
func (p WildcardPattern) Match(value string) bool {
	if p.matchAll {
		return true
	}
	if len(p.parts) == 0 {
		return false
	}

	cursor := 0
	partIndex := 0

	if p.anchoredStart {
		startPart := p.parts[0]
		if !strings.HasPrefix(value, startPart) {
			return false
		}
		cursor = len(startPart)
		partIndex = 1
	}

	lastIndex := len(p.parts) - 1
	loopLimit := len(p.parts)
	if p.anchoredEnd {
		loopLimit = lastIndex
	}

	for ; partIndex < loopLimit; partIndex++ {
		segment := p.parts[partIndex]
		if segment == "" {
			continue
		}
		offset := strings.Index(value[cursor:], segment)
		if offset < 0 {
			return false
		}
		cursor += offset + len(segment)
	}

	if p.anchoredEnd {
		endPart := p.parts[lastIndex]
		if endPart == "" {
			return true
		}
		return strings.HasSuffix(value, endPart)
	}

	return true
}

// CompileAll compiles wildcard masks and skips blank entries.
// Params: patterns wildcard strings from config.
// Returns: compiled matcher list (nil when nothing usable).
func CompileAll(patterns []string) []WildcardPattern {
	if len(patterns) == 0 {
		return nil
	}

	compiled := make([]WildcardPattern, 0, len(patterns))
	for _, pattern := range patterns {
		parsed, ok := CompileWildcard(pattern)
		if !ok {
			continue
		}
		compiled = append(compiled, parsed)
	}
	return compiled
}

// MatchAny reports whether any compiled pattern matches value.
// Params: patterns compiled matchers; value compared text.
// Returns: true on first match.
func MatchAny(patterns []WildcardPattern, value string) bool {
	for _, pattern := range patterns {
		if pattern.Match(value) {
			return true
		}
	}
	return false
}
