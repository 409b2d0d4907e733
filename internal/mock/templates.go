package mock

import (
	"context"
	"fmt"
	"net/url"

	"github.com/lynxrender/backend/internal/resource"
)

// Scheme is the URL scheme served by Fetcher.
const Scheme = "mock"

var templates = map[string]string{
	"feed": `
page_config:
  version: "1.4"
elements: [view, list, image, text]
data:
  title: Feed
  items: 0
script: |
  var processors = { count: function (d) { d.title = "Feed (" + d.items + ")"; return d } }
`,
	"profile": `
page_config:
  version: "2.0"
  vsync_aligned_flush: true
elements: [view, image, text]
data:
  name: guest
`,
	"settings": `
elements: [view, text, switch]
data:
  dark: false
`,
	"player": `
page_config:
  version: "0.9"
elements: [view, video, text]
data:
  position: 0
`,
}

// URL returns the mock URL for a built-in template.
func URL(name string) string {
	return Scheme + "://" + name
}

// Fetcher serves the built-in templates for mock:// URLs.
func Fetcher() resource.Fetcher {
	return resource.FetcherFunc(func(_ context.Context, rawURL string) ([]byte, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		tpl, ok := templates[u.Host]
		if !ok {
			return nil, fmt.Errorf("mock: no template %q", u.Host)
		}
		return []byte(tpl), nil
	})
}
