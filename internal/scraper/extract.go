package scraper

import (
	"bytes"
	"fmt"

	"github.com/FranksOps/pagewatch/internal/diff"
	"github.com/PuerkitoBio/goquery"
)

const nonContent = "script, style, noscript, template, svg, iframe"

// Elements whose boundaries separate words once tags are stripped.
const blockElements = "address, article, aside, blockquote, br, dd, div, dl, dt, " +
	"fieldset, figcaption, figure, footer, form, h1, h2, h3, h4, h5, h6, header, " +
	"hr, li, main, nav, ol, p, pre, section, table, td, th, tr, ul"

// ExtractText returns the normalized visible text of an HTML document's body.
func ExtractText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	root := doc.Find("body")
	root.Find(nonContent).Remove()
	root.Find(blockElements).AppendHtml(" ")

	return diff.Normalize(root.Text()), nil
}
