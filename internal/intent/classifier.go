// Package intent classifies a message into at most one special-handling intent.
//
// Classifiers are evaluated in Precedence order and the first match wins.
// Classification is pure: only arithmetic is answered here, every other
// intent carries a query that the aggregator resolves against its
// collaborators.
package intent

import (
	"strings"

	"github.com/siegecorps/siegebot/internal/models"
)

// Precedence is the evaluation order of the classifiers
var Precedence = []models.IntentKind{
	models.IntentSensitive,
	models.IntentMath,
	models.IntentTime,
	models.IntentWiki,
	models.IntentBusiness,
	models.IntentScrape,
}

type classifier func(text string) (models.Intent, bool)

var classifiers = map[models.IntentKind]classifier{
	models.IntentSensitive: classifySensitive,
	models.IntentMath:      classifyMath,
	models.IntentTime:      classifyTime,
	models.IntentWiki:      classifyWiki,
	models.IntentBusiness:  classifyBusiness,
	models.IntentScrape:    classifyScrape,
}

// Classify returns the first matching intent, or an intent of kind none
func Classify(text string) models.Intent {
	for _, kind := range Precedence {
		if in, ok := classifiers[kind](text); ok {
			in.Kind = kind
			return in
		}
	}
	return models.Intent{Kind: models.IntentNone}
}

// IsComplex reports whether a request deserves the longer answer budget
func IsComplex(text string, kind models.IntentKind) bool {
	switch kind {
	case models.IntentWiki, models.IntentBusiness, models.IntentScrape:
		return true
	}
	return detailPattern.MatchString(text)
}

// IsSensitive reports whether text touches a deflected topic
func IsSensitive(text string) bool {
	return sensitivePattern.MatchString(text)
}

func classifySensitive(text string) (models.Intent, bool) {
	m := sensitivePattern.FindString(text)
	if m == "" {
		return models.Intent{}, false
	}
	return models.Intent{Query: strings.ToLower(m)}, true
}

func classifyMath(text string) (models.Intent, bool) {
	triggered := false
	for _, re := range mathTriggers {
		if re.MatchString(text) {
			triggered = true
			break
		}
	}
	if !triggered {
		return models.Intent{}, false
	}

	expr := mathFiller.ReplaceAllString(text, "")
	expr = strings.TrimRight(strings.TrimSpace(expr), "?=!. ")
	expr, ok := Sanitize(expr)
	if !ok {
		return models.Intent{}, false
	}

	res, err := Evaluate(expr)
	if err != nil {
		return models.Intent{}, false
	}
	return models.Intent{
		Query:    expr,
		Payload:  res.Format(),
		Resolved: true,
		Failed:   res.Undefined,
	}, true
}

func classifyTime(text string) (models.Intent, bool) {
	if !timePattern.MatchString(text) {
		return models.Intent{}, false
	}
	return models.Intent{}, true
}

func classifyWiki(text string) (models.Intent, bool) {
	if !wikiPattern.MatchString(text) {
		return models.Intent{}, false
	}
	q := CleanWikiQuery(text)
	if len([]rune(q)) < 2 {
		return models.Intent{}, false
	}
	return models.Intent{Query: q}, true
}

// CleanWikiQuery removes trigger phrases and surrounding punctuation
func CleanWikiQuery(text string) string {
	q := wikiPattern.ReplaceAllString(text, " ")
	q = strings.Join(strings.Fields(q), " ")
	return strings.Trim(q, queryPunctuation)
}

func classifyBusiness(text string) (models.Intent, bool) {
	for _, p := range businessPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.Trim(strings.TrimSpace(m[1]), queryPunctuation)
		if name == "" {
			continue
		}
		return models.Intent{Query: name, Facet: p.facet}, true
	}
	return models.Intent{}, false
}

func classifyScrape(text string) (models.Intent, bool) {
	u := urlPattern.FindString(text)
	if u == "" {
		return models.Intent{}, false
	}
	u = strings.TrimRight(u, urlTrailing)
	return models.Intent{Query: u}, true
}
