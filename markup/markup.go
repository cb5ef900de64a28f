// Package markup renders the lightweight text markup used in item bodies:
// **bold** spans, bare URLs that become links, and bare image URLs that
// become inline images.
package markup

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	urlPattern  = regexp.MustCompile(`(?i)((?:https?://)|(?:www\.))[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b(?:[-a-zA-Z0-9()@:%_+.~#?&/=]*)`)
	boldPattern = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	schemeless  = regexp.MustCompile(`(?i)^(https?://)?(www\.)?`)
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// Render converts item text to HTML. Everything that is not markup is
// escaped.
func Render(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		b.WriteString(renderPlain(text[last:loc[0]]))
		b.WriteString(renderURL(text[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(renderPlain(text[last:]))
	return b.String()
}

// Plain strips the markup sentinels, leaving readable text.
func Plain(text string) string {
	return boldPattern.ReplaceAllString(text, "$1")
}

// Host returns the host part of a source link for display, or the link
// itself when it has none.
func Host(source string) string {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil || u.Host == "" {
		return source
	}
	return u.Host
}

// IsImageURL reports whether a link points at an image file.
func IsImageURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return imageExts[strings.ToLower(path.Ext(u.Path))]
}

func renderPlain(s string) string {
	escaped := html.EscapeString(s)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

func renderURL(raw string) string {
	href := raw
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		href = "http://" + raw
	}
	escapedHref := html.EscapeString(href)

	if IsImageURL(href) {
		return `<img src="` + escapedHref + `" alt="">`
	}

	display := schemeless.ReplaceAllString(raw, "")
	display, _, _ = strings.Cut(display, "/")
	return `<a href="` + escapedHref + `" target="_blank" rel="noopener noreferrer">` + html.EscapeString(display) + `</a>`
}
