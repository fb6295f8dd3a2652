package ghdb

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrDorkNotFound is returned when a page holds no recognizable dork.
var ErrDorkNotFound = errors.New("no dork found on page")

// ParseDorkPage extracts the dork text from a GHDB detail page.
//
// The current layout shows the dork as the card title. Older layouts put it
// in the first table: as the first link of the third cell, or as the text of
// the second cell.
func ParseDorkPage(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	if dork := clean(doc.Find("h1.card-title").First().Text()); dork != "" {
		return dork, nil
	}

	cells := doc.Find("table").First().Find("td")
	if dork := clean(cells.Eq(2).Find("a").First().Text()); dork != "" {
		return dork, nil
	}
	if dork := clean(cells.Eq(1).Find("a").First().Text()); dork != "" {
		return dork, nil
	}

	return "", ErrDorkNotFound
}

// clean collapses whitespace so a dork always fits on one template line.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WriteTemplates writes one dork per line.
func WriteTemplates(w io.Writer, dorks []Dork) error {
	var sb strings.Builder
	for _, d := range dorks {
		sb.WriteString(d.Query)
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
