package middleware

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestValidateInput(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewSecurityMiddleware(log, 0)

	assert.NoError(t, s.ValidateInput("hello"))
	assert.Error(t, s.ValidateInput(string([]byte{0xff, 0xfe})))
	assert.Error(t, s.ValidateInput(strings.Repeat("a", TransportMaxChars+1)))
	assert.NoError(t, s.ValidateInput(strings.Repeat("a", TransportMaxChars)))
}

func TestTruncateForTransport(t *testing.T) {
	short := "fits fine"
	assert.Equal(t, short, TruncateForTransport(short, TransportMaxChars))

	long := strings.Repeat("word ", 1000)
	out := TruncateForTransport(long, TransportMaxChars)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), TransportMaxChars)
	assert.True(t, strings.HasSuffix(out, "... (response truncated)"))
	assert.LessOrEqual(t, utf8.RuneCountInString(strings.TrimSuffix(out, "... (response truncated)")), 3900)

	flat := TruncateForTransport(strings.Repeat("a", 5000), TransportMaxChars)
	assert.Equal(t, 3900+utf8.RuneCountInString("... (response truncated)"), utf8.RuneCountInString(flat))
}

func TestSanitizeOutput(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewSecurityMiddleware(log, 0)

	assert.Equal(t, "a\nb\tc", s.SanitizeOutput("a\x00\nb\tc\x07"))
	assert.Equal(t, "ok", s.TruncateForTransport("o\x1bk"))
	assert.Equal(t, "a\nb", s.TruncateForTransport("a\x00\nb\x07"))
}
