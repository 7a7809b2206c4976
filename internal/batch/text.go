package batch

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	lineBreak     = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	spaces        = regexp.MustCompile(`\s+`)
)

// plainText reduces note field HTML to its visible text.
func plainText(s string) string {
	if s == "" {
		return ""
	}
	s = scriptOrStyle.ReplaceAllString(s, "")
	s = lineBreak.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// highlight wraps every case-insensitive occurrence of word in <b> tags.
func highlight(text, word string) string {
	if text == "" || word == "" {
		return text
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(word))
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, "<b>$0</b>")
}
