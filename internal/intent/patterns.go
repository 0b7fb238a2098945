package intent

import "regexp"

var (
	sensitivePattern = regexp.MustCompile(`(?i)\b(?:hitler|holocaust|race|blacks|crime|indian|hindu|furries|gay|trans|sexual|covid|9/11|september\s+11)`)

	mathTriggers = []*regexp.Regexp{
		regexp.MustCompile(`\d+(?:\.\d+)?\s*[-+*/xX×÷^%]\s*\(?\s*\d`),
		regexp.MustCompile(`(?i)\b(?:what\s+is|what's|how\s+much\s+is|calculate|compute|solve)\s+[-+\d(]`),
		regexp.MustCompile(`=\s*\?`),
	}
	mathFiller = regexp.MustCompile(`(?i)^.*?\b(?:what\s+is|what's|how\s+much\s+is|calculate|compute|solve)\s+`)

	timePattern = regexp.MustCompile(`(?i)\b(?:time|date|year)\b`)

	wikiPattern = regexp.MustCompile(`(?i)\b(?:wikipedia|wiki|what\s+is|who\s+is|who\s+was|tell\s+me\s+about)\b`)

	businessPatterns = []struct {
		facet string
		re    *regexp.Regexp
	}{
		{"phone", regexp.MustCompile(`(?i)phone\s+number\s+for\s+(.+)`)},
		{"address", regexp.MustCompile(`(?i)address\s+for\s+(.+)`)},
		{"contact", regexp.MustCompile(`(?i)contact\s+(.+)`)},
		{"info", regexp.MustCompile(`(?i)info\s+for\s+(.+)`)},
		{"info", regexp.MustCompile(`(?i)about\s+(.+)\s+company`)},
	}

	urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

	detailPattern = regexp.MustCompile(`(?i)\b(?:explain|how|what\s+is|tell\s+me\s+about|describe|wiki|wikipedia|history|background|details|why|when|where|definition|meaning)\b`)
)

const (
	queryPunctuation = "?!.,;:'\" "
	urlTrailing      = ".,;:!?)]}"
)
