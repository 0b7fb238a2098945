// Package postprocess turns raw generated text into the persona's final reply.
package postprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/internal/persona"
)

// Presentation probabilities
const (
	AddressProbability = 0.20
	AdminProbability   = 0.30
	FlavorProbability  = 0.15
	MoodProbability    = 0.40
)

const ellipsis = "..."

var hostileTerms = []string{"bro", "dude", "mate"}

// Rand is the randomness the post-processor consumes
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// Options carry the per-message facts the post-processor depends on
type Options struct {
	Complex    bool
	Attitude   models.Attitude
	IsAdmin    bool
	AdminTitle string
	// MaxChars overrides the persona limit when positive
	MaxChars int
}

var (
	asAnAI = regexp.MustCompile(`(?i)\bas an?\s+(?:ai|artificial intelligence|large language model|language model)(?:\s+(?:language model|assistant|model|chatbot))?\b`)
	iAmAI  = regexp.MustCompile(`(?i)\bi(?:'m|\s+am)\s+(?:just\s+|only\s+)?an?\s+(?:ai|artificial intelligence|large language model|language model)(?:\s+(?:language model|assistant|model|chatbot))?\b`)
)

// Process applies, in order: speaker prefix removal, self-reference framing,
// sentence collapse, address terms, admin honorific, hostile suffix, flavor,
// mood and the length cap. An empty result means the text was unusable.
func Process(p persona.Persona, raw string, opts Options, rng Rand) string {
	text := StripPrefix(p, raw)
	text = Reframe(p, text)
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	limit := p.MaxSentences
	if opts.Complex {
		limit = p.MaxSentencesComplex
	}
	text = Collapse(text, limit)

	if rng.Float64() < AddressProbability && !containsAny(text, p.AddressTerms) && len(p.AddressTerms) > 0 {
		text = capitalize(pick(rng, p.AddressTerms)) + ", " + decapitalize(text)
	}

	if opts.IsAdmin && rng.Float64() < AdminProbability && !containsAny(text, append([]string{opts.AdminTitle}, p.AdminHonorifics...)) {
		options := p.AdminHonorifics
		if opts.AdminTitle != "" {
			options = append([]string{opts.AdminTitle}, p.AdminHonorifics...)
		}
		if len(options) > 0 {
			text = addressAtEnd(text, pick(rng, options))
		}
	}

	if opts.Attitude == models.AttitudeHostile && !strings.Contains(strings.ToLower(text), "chill") {
		text = addressAtEnd(text, "chill "+pick(rng, hostileTerms))
	}

	if rng.Float64() < FlavorProbability && !containsAny(text, p.Flavors) && len(p.Flavors) > 0 {
		text += " " + pick(rng, p.Flavors)
	}

	if rng.Float64() < MoodProbability && !containsAny(text, p.Moods) && len(p.Moods) > 0 {
		text += " " + pick(rng, p.Moods)
	}

	max := p.MaxChars
	if opts.MaxChars > 0 {
		max = opts.MaxChars
	}
	return Truncate(text, max)
}

// StripPrefix removes leading speaker labels such as "Siege:".
func StripPrefix(p persona.Persona, text string) string {
	text = strings.TrimSpace(text)
	for {
		trimmed := text
		for _, name := range p.NamePrefixes {
			if len(trimmed) <= len(name) || !strings.EqualFold(trimmed[:len(name)], name) {
				continue
			}
			rest := strings.TrimLeft(trimmed[len(name):], " \t")
			if strings.HasPrefix(rest, ":") {
				trimmed = strings.TrimSpace(rest[1:])
				break
			}
		}
		if trimmed == text {
			return text
		}
		text = trimmed
	}
}

// Reframe replaces "as an AI" and "I am an AI" phrasing with the persona's framing
func Reframe(p persona.Persona, text string) string {
	framing := p.SelfFraming
	if framing == "" {
		framing = "as an android"
	}
	text = iAmAI.ReplaceAllString(text, "I'm "+strings.TrimPrefix(framing, "as "))
	return asAnAI.ReplaceAllString(text, framing)
}

// Collapse keeps at most n sentences. n <= 0 keeps everything.
func Collapse(text string, n int) string {
	if n <= 0 {
		return text
	}
	sentences := Sentences(text)
	if len(sentences) <= n {
		return text
	}
	return strings.Join(sentences[:n], " ")
}

// Sentences splits text after '.', '!' or '?' runs followed by whitespace
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && isTerminal(runes[j+1]) {
			j++
		}
		if j+1 == len(runes) || unicode.IsSpace(runes[j+1]) {
			if s := strings.TrimSpace(string(runes[start : j+1])); s != "" {
				out = append(out, s)
			}
			start = j + 1
		}
		i = j
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Truncate caps text at max runes, marking the cut with "..."
func Truncate(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	return strings.TrimRightFunc(string(runes[:max-len(ellipsis)]), unicode.IsSpace) + ellipsis
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

// addressAtEnd inserts ", term" before the final punctuation mark
func addressAtEnd(text, term string) string {
	end := ""
	if n := len(text); n > 0 && isTerminal(rune(text[n-1])) {
		end = text[n-1:]
		text = text[:n-1]
	}
	return strings.TrimRight(text, " ,") + ", " + term + end
}

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if t == "" {
			continue
		}
		if containsWord(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// containsWord matches term at word boundaries when it starts and ends with a letter
func containsWord(text, term string) bool {
	from := 0
	for {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(term)
		before := i == 0 || !isWordByte(text[i-1]) || !isWordByte(term[0])
		after := end == len(text) || !isWordByte(text[end]) || !isWordByte(term[len(term)-1])
		if before && after {
			return true
		}
		from = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b == '\'' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func pick(rng Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

// decapitalize lowers a leading capital unless it starts an acronym or the pronoun "I"
func decapitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 || !unicode.IsUpper(r[0]) {
		return s
	}
	if len(r) > 1 && (unicode.IsUpper(r[1]) || (r[0] == 'I' && !unicode.IsLetter(r[1]))) {
		return s
	}
	if len(r) == 1 && r[0] == 'I' {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
