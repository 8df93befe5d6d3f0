// Package security screens repository content before it is embedded in a prompt.
package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

const (
	// Maximum sizes to prevent resource exhaustion
	MaxPathLength  = 500
	MaxPatchSize   = 50000
	MaxContentSize = 1 << 20

	// Suspicious pattern thresholds
	MaxUnicodeComplexity = 0.3 // Max 30% non-ASCII characters
)

// Result contains the sanitized input and any security findings.
type Result struct {
	Sanitized      string
	ThreatDetected bool
	ThreatDetails  []string
}

func (r *Result) add(detail string) {
	r.ThreatDetected = true
	r.ThreatDetails = append(r.ThreatDetails, detail)
}

// Sanitizer screens file paths, contents and patches for prompt injection.
// In strict mode detected instructions are neutralized, otherwise they are
// only reported.
type Sanitizer struct {
	strict bool
	logger *slog.Logger
}

// NewSanitizer creates a Sanitizer. A nil logger uses the process default.
func NewSanitizer(strict bool, logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sanitizer{strict: strict, logger: logger.With("component", "security")}
}

var injectionPatterns = []struct {
	pattern *regexp.Regexp
	threat  string
}{
	{regexp.MustCompile(`(?i)(ignore|disregard|forget).{0,20}(previous|above|prior|all).{0,20}(instruction|prompt|rule)`), "Instruction override attempt"},
	{regexp.MustCompile(`(?i)new\s+(instruction|prompt|rule|task)s?:`), "New instruction injection"},
	{regexp.MustCompile(`(?i)system\s+(prompt|message|instruction):`), "System prompt injection"},
	{regexp.MustCompile(`(?i)</?(system|assistant|user|instruction)>`), "Chat markup injection"},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|important)`), "Markdown instruction injection"},
	{regexp.MustCompile(`(?i)"is_good"\s*:\s*true`), "Verdict injection"},
	{regexp.MustCompile(`(?m)^\W*VERDICT:\s*GOOD`), "Verdict marker injection"},
	{regexp.MustCompile(`(?i)(always|must|should)\s+(be\s+)?(approve|accept|mark|judge|rate)d?\b.{0,30}\b(good|safe|correct)`), "Forced verdict attempt"},
	{regexp.MustCompile(`\x00|\x1b\[|\x{202e}|\x{feff}`), "Control character injection"},
}

// SanitizePath validates a repository path before it appears in a prompt.
func (s *Sanitizer) SanitizePath(path string) Result {
	result := Result{}

	if len(path) > MaxPathLength {
		result.add(fmt.Sprintf("Path exceeds maximum length: %d > %d", len(path), MaxPathLength))
		path = TruncateUTF8(path, MaxPathLength)
	}

	if hasControlCharacters(path) {
		result.add("Control characters removed from path")
		path = removeControlCharacters(path)
	}
	if hasSuspiciousUnicode(path) {
		result.add("Suspicious Unicode patterns detected in path")
		if s.strict {
			path = normalizeUnicode(path)
		}
	}

	result.Sanitized = path
	return result
}

// SanitizeContent screens the full text of a changed file.
func (s *Sanitizer) SanitizeContent(content, path string) Result {
	result := Result{}

	if len(content) > MaxContentSize {
		result.add(fmt.Sprintf("Content of %s exceeds maximum size: %d > %d", path, len(content), MaxContentSize))
		content = TruncateUTF8(content, MaxContentSize) + "\n... [truncated]"
	}

	if hasControlCharacters(content) {
		result.add("Control characters removed")
		content = removeControlCharacters(content)
	}

	if threats := s.detectCodeCommentInjection(content); len(threats) > 0 {
		for _, t := range threats {
			result.add(t)
		}
		if s.strict {
			content = neutralizeCodeComments(content)
		}
	}

	result.Sanitized = content
	s.report(path, result)
	return result
}

// SanitizePatch sanitizes and validates patch content.
func (s *Sanitizer) SanitizePatch(patch, path string) Result {
	result := Result{}

	// Check patch size
	if len(patch) > MaxPatchSize {
		result.add(fmt.Sprintf("Patch for %s exceeds maximum size: %d > %d", path, len(patch), MaxPatchSize))
		patch = TruncateUTF8(patch, MaxPatchSize) + "\n... [truncated]"
	}

	if hasControlCharacters(patch) {
		result.add("Control characters removed")
		patch = removeControlCharacters(patch)
	}

	// Detect embedded prompt instructions in code comments
	if threats := s.detectCodeCommentInjection(patch); len(threats) > 0 {
		for _, t := range threats {
			result.add(t)
		}
		if s.strict {
			patch = neutralizeCodeComments(patch)
		}
	}

	result.Sanitized = patch
	s.report(path, result)
	return result
}

func (s *Sanitizer) report(path string, r Result) {
	if r.ThreatDetected {
		s.logger.Warn("suspicious content in changed file", "path", path, "findings", r.ThreatDetails)
	}
}

// DetectPromptInjection returns the injection patterns found in text.
func DetectPromptInjection(text string) []string {
	var threats []string
	for _, p := range injectionPatterns {
		if p.pattern.MatchString(text) {
			threats = append(threats, p.threat)
		}
	}
	return threats
}

var commentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)//.*$`),       // Single-line comments
	regexp.MustCompile(`/\*[\s\S]*?\*/`),  // Multi-line comments
	regexp.MustCompile(`(?m)#.*$`),        // Shell/Python comments
	regexp.MustCompile(`<!--[\s\S]*?-->`), // HTML comments
	regexp.MustCompile(`"""[\s\S]*?"""`),  // Python docstrings
}

// detectCodeCommentInjection detects injection attempts in code comments.
// Each distinct finding is reported once.
func (s *Sanitizer) detectCodeCommentInjection(code string) []string {
	seen := make(map[string]bool)
	var threats []string

	for _, pattern := range commentPatterns {
		for _, match := range pattern.FindAllString(code, -1) {
			for _, threat := range DetectPromptInjection(match) {
				detail := "Injection in code comment: " + threat
				if !seen[detail] {
					seen[detail] = true
					threats = append(threats, detail)
				}
			}
		}
	}

	return threats
}

// hasSuspiciousUnicode checks for Unicode-based attacks.
func hasSuspiciousUnicode(text string) bool {
	if !utf8.ValidString(text) {
		return true
	}

	nonASCII := 0
	total := 0
	for _, r := range text {
		total++
		if r > 127 {
			nonASCII++
		}
		// Check for specific dangerous Unicode characters
		if r == '\u202e' || // Right-to-left override
			r == '\ufeff' || // Zero-width no-break space
			r == '\u200b' || // Zero-width space
			r == '\u2060' || // Word joiner
			(r >= '\ue000' && r <= '\uf8ff') { // Private use area
			return true
		}
	}

	return total > 0 && float64(nonASCII)/float64(total) > MaxUnicodeComplexity
}

var suspiciousComment = []*regexp.Regexp{
	regexp.MustCompile(`(?im)//.*?(ignore|instruction|prompt|verdict|is_good).*$`),
	regexp.MustCompile(`(?is)/\*.*?(ignore|instruction|prompt|verdict|is_good).*?\*/`),
	regexp.MustCompile(`(?im)#.*?(ignore|instruction|prompt|verdict|is_good).*$`),
}

// neutralizeCodeComments replaces suspicious comments with a placeholder.
func neutralizeCodeComments(code string) string {
	result := code
	for _, pattern := range suspiciousComment {
		result = pattern.ReplaceAllString(result, "/* [comment sanitized] */")
	}
	return result
}

// hasControlCharacters reports control characters other than newlines, carriage returns and tabs.
func hasControlCharacters(text string) bool {
	for _, r := range text {
		if r != '\n' && r != '\t' && r != '\r' && (r < 32 || r == 127 || r == '\u202e' || r == '\ufeff') {
			return true
		}
	}
	return false
}

// removeControlCharacters removes control characters except newlines, carriage returns and tabs.
func removeControlCharacters(text string) string {
	var result strings.Builder
	result.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || r == '\r' || (r >= 32 && r != 127 && r != '\u202e' && r != '\ufeff') {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// normalizeUnicode converts text to an ASCII-safe version.
func normalizeUnicode(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r < 128 {
			result.WriteRune(r)
		} else {
			fmt.Fprintf(&result, "\\u%04x", r)
		}
	}
	return result.String()
}

// TruncateUTF8 cuts s to at most n bytes on a rune boundary.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
