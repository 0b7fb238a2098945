// Package markdown renders model replies for chat transports that accept a
// small HTML subset.
package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphRe = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	preCodeRe   = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	tagRe       = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(?:\s[^>]*)?>`)
	blankRe     = regexp.MustCompile(`\n{3,}`)

	replacer = strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<del>", "<s>", "</del>", "</s>",
		"<ul>", "", "</ul>", "", "<ol>", "", "</ol>", "",
		"<li>", "• ", "</li>\n", "\n", "</li>", "\n",
		"<hr>", "", "<hr />", "",
	)

	// supported is what the chat transport renders in HTML parse mode
	supported = map[string]bool{"b": true, "i": true, "u": true, "s": true, "code": true, "pre": true, "a": true}
)

// ToHTML converts markdown to transport HTML. Unsupported tags are dropped.
func ToHTML(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	out := string(blackfriday.Run([]byte(text), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	out = paragraphRe.ReplaceAllString(out, "$1\n")
	out = preCodeRe.ReplaceAllString(out, "<pre>$1</pre>")
	out = replacer.Replace(out)
	out = tagRe.ReplaceAllStringFunc(out, func(tag string) string {
		if supported[strings.ToLower(tagRe.FindStringSubmatch(tag)[1])] {
			return tag
		}
		return ""
	})
	out = blankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// ToPlain renders markdown and strips every tag, for transports that
// reject the HTML form
func ToPlain(text string) string {
	out := tagRe.ReplaceAllString(ToHTML(text), "")
	return unescape(out)
}

// unescape reverses the entities blackfriday emits
func unescape(s string) string {
	return strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(s)
}
