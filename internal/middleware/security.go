package middleware

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	// TransportMaxChars is the largest message the chat transport accepts
	TransportMaxChars = 4096
	truncateAt        = 3900
	truncatedMarker   = "... (response truncated)"
)

// SecurityMiddleware provides input and output checks at the transport boundary
type SecurityMiddleware struct {
	logger   *logrus.Logger
	maxChars int
}

// NewSecurityMiddleware creates security middleware. maxChars <= 0 uses TransportMaxChars.
func NewSecurityMiddleware(logger *logrus.Logger, maxChars int) *SecurityMiddleware {
	if maxChars <= 0 || maxChars > TransportMaxChars {
		maxChars = TransportMaxChars
	}
	return &SecurityMiddleware{
		logger:   logger,
		maxChars: maxChars,
	}
}

// ValidateInput performs input validation
func (s *SecurityMiddleware) ValidateInput(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(text); n > TransportMaxChars {
		return fmt.Errorf("message too long: %d chars", n)
	}
	return nil
}

// SanitizeOutput removes control characters other than newlines and tabs
func (s *SecurityMiddleware) SanitizeOutput(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

// TruncateForTransport sanitizes text and caps it to the transport limit
func (s *SecurityMiddleware) TruncateForTransport(text string) string {
	text = s.SanitizeOutput(text)
	out := TruncateForTransport(text, s.maxChars)
	if len(out) != len(text) {
		s.logger.WithField("chars", utf8.RuneCountInString(text)).Debug("Reply truncated for transport")
	}
	return out
}

// TruncateForTransport caps text at max characters. On overflow it keeps the
// first max-196 characters (3900 at the transport limit) followed by a marker.
func TruncateForTransport(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := max - (TransportMaxChars - truncateAt)
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + truncatedMarker
}
