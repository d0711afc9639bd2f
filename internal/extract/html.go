package extract

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ignoredTags are elements whose text content never belongs in output.
var ignoredTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"template": true,
}

// htmlText walks an HTML token stream and returns (title, body text).
// Malformed markup is tolerated; we return whatever was collected.
func htmlText(r io.Reader) (string, string, error) {
	tz := html.NewTokenizer(r)
	var (
		title   strings.Builder
		body    strings.Builder
		inTitle bool
		ignored int
		pending bool
	)

	for {
		switch tz.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(title.String()), strings.TrimSpace(body.String()), nil

		case html.StartTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = true
			}
			if ignoredTags[tag] {
				ignored++
			}
			if blockTag(tag) && pending {
				body.WriteString("\n")
				pending = false
			}

		case html.EndTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = false
			}
			if ignoredTags[tag] && ignored > 0 {
				ignored--
			}

		case html.TextToken:
			content := strings.TrimSpace(string(tz.Text()))
			if content == "" {
				continue
			}
			if inTitle {
				title.WriteString(content)
				continue
			}
			if ignored == 0 {
				if pending {
					body.WriteString(" ")
				}
				body.WriteString(content)
				pending = true
			}
		}
	}
}

func blockTag(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "br", "hr", "blockquote", "pre", "table", "tr",
		"article", "section", "header", "footer", "main":
		return true
	}
	return false
}
