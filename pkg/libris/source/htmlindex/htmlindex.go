// Package htmlindex turns an HTML directory listing or download page into
// catalog records, one per linked PDF.
package htmlindex

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
)

// FieldPath holds the resolved link of an imported record.
const FieldPath = "path"

// Parse reads an HTML page and returns a record for every link to a .pdf
// file, in document order. base, when set, resolves relative links.
// Links sharing a filename are reported once, first occurrence wins.
func Parse(r io.Reader, base string) ([]catalog.Record, error) {
	var baseURL *url.URL
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("base url %q: %v: %w", base, err, internalerr.ErrInvalidInput)
		}
		baseURL = u
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	records := []catalog.Record{}
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		name, ok := pdfName(link)
		if !ok {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}

		title := CleanTitle(a.Text())
		if title == "" {
			title = CleanTitle(a.AttrOr("title", ""))
		}

		rec := catalog.NewRecord(name, title, "")
		rec.Set(FieldPath, resolve(baseURL, link))
		if src, ok := a.Find("img[src]").First().Attr("src"); ok {
			if img, err := url.Parse(strings.TrimSpace(src)); err == nil {
				rec.Set(catalog.FieldCoverURL, resolve(baseURL, img))
			}
		}
		records = append(records, rec)
	})
	return records, nil
}

// CleanTitle NFC-normalizes s and collapses whitespace runs to one space.
func CleanTitle(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func pdfName(link *url.URL) (string, bool) {
	p := link.Path
	if p == "" && link.Opaque != "" {
		return "", false
	}
	if !strings.EqualFold(path.Ext(p), ".pdf") {
		return "", false
	}
	name := norm.NFC.String(path.Base(p))
	if name == "" || name == "." || name == "/" {
		return "", false
	}
	return name, true
}

func resolve(base, link *url.URL) string {
	if base == nil {
		return link.String()
	}
	return base.ResolveReference(link).String()
}
