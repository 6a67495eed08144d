// Package extract turns rendered page markup into a deduplicated set of absolute image URLs.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"golang.org/x/net/html"
)

// ErrInvalidPageURL is returned when the page URL cannot anchor relative references.
var ErrInvalidPageURL = errors.New("page url must be an absolute http(s) url")

// cdnResizePattern matches Cloudflare-style width-limited proxy prefixes, with or without host.
var cdnResizePattern = regexp.MustCompile(`(?:(https?:)?//([^/\s"'<>,]+))?/cdn-cgi/image/width=\d+/`)

// Resolve extracts image candidates from markup and resolves them against pageURL.
// The result is sorted and contains no duplicates.
func Resolve(pageURL, markup string) ([]string, error) {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || !isHTTP(base) || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPageURL, pageURL)
	}

	root, err := html.Parse(strings.NewReader(StripCDNPrefixes(markup)))
	if err != nil {
		return []string{}, nil
	}
	doc := goquery.NewDocumentFromNode(root)

	set := make(map[string]struct{})
	add := func(raw string) {
		if resolved, ok := resolveOne(base, raw); ok {
			set[resolved] = struct{}{}
		}
	}

	doc.Find("img, picture source").Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("data-src"); ok {
			add(v)
		}
		if v, ok := sel.Attr("src"); ok {
			add(v)
		}
		if v, ok := sel.Attr("srcset"); ok {
			if last, ok := LastSrcsetURL(v); ok {
				add(last)
			}
		}
	})

	out := lo.Keys(set)
	sort.Strings(out)
	return out, nil
}

// StripCDNPrefixes removes width-limited resize prefixes so the full-resolution path remains.
// A remainder that is already an absolute URL is kept as is; otherwise it is re-anchored
// on the CDN origin (or the site root when the prefix carried no host).
func StripCDNPrefixes(s string) string {
	matches := cdnResizePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		last = m[1]

		if hasAbsolutePrefix(s[m[1]:]) {
			continue
		}
		switch {
		case m[4] < 0:
			b.WriteString("/")
		case m[2] < 0:
			b.WriteString("//" + s[m[4]:m[5]] + "/")
		default:
			b.WriteString(s[m[2]:m[3]] + "//" + s[m[4]:m[5]] + "/")
		}
	}
	b.WriteString(s[last:])
	return b.String()
}

// LastSrcsetURL returns the URL token of the last non-empty srcset entry.
// By convention the largest variant is listed last.
func LastSrcsetURL(srcset string) (string, bool) {
	entries := strings.Split(srcset, ",")
	for i := len(entries) - 1; i >= 0; i-- {
		fields := strings.Fields(entries[i])
		if len(fields) == 0 {
			continue
		}
		return fields[0], true
	}
	return "", false
}

// resolveOne makes raw absolute against base and rejects inline or non-http references.
func resolveOne(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || isDataURI(raw) {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	u := base.ResolveReference(ref)
	if !isHTTP(u) || u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""

	out := StripCDNPrefixes(u.String())
	if out != u.String() {
		// Re-parse so a stripped remainder pointing elsewhere is still validated.
		again, err := url.Parse(out)
		if err != nil || !isHTTP(again) || again.Host == "" {
			return "", false
		}
	}
	return out, true
}

func isDataURI(raw string) bool {
	return len(raw) >= 5 && strings.EqualFold(raw[:5], "data:")
}

func isHTTP(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func hasAbsolutePrefix(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//")
}
