package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankBeforeNewline = regexp.MustCompile(`[ \t]+\n`)

// ExtractHTML returns the page title and main text of an HTML document.
// Headings, paragraphs and list items under main or article are kept; without those
// elements the whole document is used, and when that yields nothing the body text is returned.
func ExtractHTML(content []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", "", err
	}
	doc.Find("script, style, noscript").Remove()
	title = strings.TrimSpace(doc.Find("title").First().Text())

	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	var parts []string
	sel.Find("h1,h2,h3,h4,p,li,pre").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		body := strings.TrimSpace(doc.Find("body").Text())
		if body != "" {
			parts = append(parts, body)
		}
	}
	return title, cleanWhitespace(strings.Join(parts, "\n")), nil
}

func cleanWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return blankBeforeNewline.ReplaceAllString(s, "\n")
}

// TitleFromText returns the first non-empty line of s, cut to 120 characters.
func TitleFromText(s string) string {
	line := strings.SplitN(strings.TrimSpace(s), "\n", 2)[0]
	if r := []rune(line); len(r) > 120 {
		line = string(r[:120])
	}
	return strings.TrimSpace(line)
}
