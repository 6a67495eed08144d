package extract

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

// TestResolveGalleryScenario checks lazy, inline and srcset handling together.
func TestResolveGalleryScenario(t *testing.T) {
	markup := `<html><body>
		<img data-src="/a.jpg">
		<img src="data:image/png;base64,AAAA">
		<img srcset="/b-small.jpg 480w, /b-large.jpg 1080w">
	</body></html>`

	got, err := Resolve("http://example.test/gallery", markup)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"http://example.test/a.jpg", "http://example.test/b-large.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
}

// TestResolveDeduplicatesAfterResolution checks set semantics on resolved strings.
func TestResolveDeduplicatesAfterResolution(t *testing.T) {
	markup := `
		<img src="/x.png" data-src="http://example.test/x.png">
		<img src="x.png">
		<img src="/x.png#frag">
		<picture><source srcset="/x.png 2x"><img src="/y.webp"></picture>`

	got, err := Resolve("http://example.test/", markup)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"http://example.test/x.png", "http://example.test/y.webp"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
}

// TestResolveIsDeterministic checks identical input yields identical output.
func TestResolveIsDeterministic(t *testing.T) {
	markup := `<img src="/c.jpg"><img src="/a.jpg"><img data-src="/b.jpg"><img srcset="/d.jpg 1x, /e.jpg 2x">`

	first, err := Resolve("https://example.test/p/", markup)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Resolve("https://example.test/p/", markup)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d = %v, want %v", i, again, first)
		}
	}
}

// TestResolveOutputsAbsoluteURLs checks every candidate carries scheme and host.
func TestResolveOutputsAbsoluteURLs(t *testing.T) {
	markup := `
		<img src="rel/one.jpg">
		<img src="../two.jpg">
		<img src="//cdn.example.test/three.jpg">
		<img src="javascript:void(0)">
		<img src="mailto:a@b">
		<img src="   ">
		<img srcset="">`

	got, err := Resolve("https://example.test/gallery/page", markup)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("urls = %v, want 3 entries", got)
	}
	for _, raw := range got {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if !u.IsAbs() || u.Host == "" {
			t.Fatalf("url %q is not absolute", raw)
		}
	}
}

// TestResolveStripsCDNResizePrefixes checks width-limited proxies never survive.
func TestResolveStripsCDNResizePrefixes(t *testing.T) {
	markup := `
		<img src="https://cdn.example.test/cdn-cgi/image/width=512/photos/full.jpg">
		<img srcset="https://cdn.example.test/cdn-cgi/image/width=480/p/s.jpg 480w, https://cdn.example.test/cdn-cgi/image/width=1080/p/l.jpg 1080w">
		<img data-src="/cdn-cgi/image/width=64/https://origin.example.test/raw.png">
		<img src="/cdn-cgi/image/width=300/local/thumb.webp">`

	got, err := Resolve("https://site.example.test/", markup)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{
		"https://cdn.example.test/p/l.jpg",
		"https://cdn.example.test/photos/full.jpg",
		"https://origin.example.test/raw.png",
		"https://site.example.test/local/thumb.webp",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
	for _, u := range got {
		if strings.Contains(u, "/cdn-cgi/image/width=") {
			t.Fatalf("cdn prefix survived in %q", u)
		}
	}
}

// TestResolveTakesOnlyLastSrcsetEntry checks the largest-last convention.
func TestResolveTakesOnlyLastSrcsetEntry(t *testing.T) {
	markup := `<img srcset="/s1.jpg 100w, /s2.jpg 200w, /s3.jpg 300w,">`

	got, err := Resolve("http://example.test/", markup)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := []string{"http://example.test/s3.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
}

// TestResolveToleratesMalformedMarkup checks that broken HTML never errors.
func TestResolveToleratesMalformedMarkup(t *testing.T) {
	for _, markup := range []string{
		"",
		"<img",
		"<div><img src='/ok.jpg'<p>",
		"<<<>>>",
		`<img srcset="%zz 1x">`,
	} {
		got, err := Resolve("http://example.test/", markup)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", markup, err)
		}
		if got == nil {
			t.Fatalf("Resolve(%q) returned nil slice", markup)
		}
	}
}

// TestResolveRejectsRelativePageURL checks the base URL contract.
func TestResolveRejectsRelativePageURL(t *testing.T) {
	for _, page := range []string{"", "/gallery", "ftp://example.test/", "http://"} {
		if _, err := Resolve(page, `<img src="/a.jpg">`); !errors.Is(err, ErrInvalidPageURL) {
			t.Fatalf("Resolve(%q) error = %v, want ErrInvalidPageURL", page, err)
		}
	}
}

func TestLastSrcsetURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "/a.jpg", want: "/a.jpg", ok: true},
		{in: "/a.jpg 1x, /b.jpg 2x", want: "/b.jpg", ok: true},
		{in: "/a.jpg 1x, /b.jpg 2x, ", want: "/b.jpg", ok: true},
		{in: " , ", ok: false},
		{in: "", ok: false},
	}

	for _, tc := range cases {
		got, ok := LastSrcsetURL(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("LastSrcsetURL(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
