package sim

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lynxrender/backend/internal/engine"
)

var ErrEmptyTemplate = errors.New("sim: empty template")

// Bundle is a decoded template document. Templates are YAML (or JSON)
// documents:
//
//	page_config:
//	  vsync_aligned_flush: true
//	elements: [view, text]
//	data:
//	  title: hello
//	script: |
//	  var processors = { upper: function (d) { d.title = d.title.toUpperCase(); return d } }
type Bundle struct {
	PageConfig engine.PageConfig `yaml:"page_config"`
	Elements   []string          `yaml:"elements"`
	Data       map[string]any    `yaml:"data"`
	Script     string            `yaml:"script"`

	url string
}

// Decode parses a template.
func Decode(tpl []byte, url string) (*Bundle, error) {
	if len(bytes.TrimSpace(tpl)) == 0 {
		return nil, ErrEmptyTemplate
	}
	var b Bundle
	if err := yaml.Unmarshal(tpl, &b); err != nil {
		return nil, fmt.Errorf("sim: decode template %s: %w", url, err)
	}
	if b.Data == nil {
		b.Data = make(map[string]any)
	}
	b.url = url
	return &b, nil
}

func (b *Bundle) Valid() bool { return b != nil && b.Data != nil }

func (b *Bundle) URL() string {
	if b == nil {
		return ""
	}
	return b.url
}
