package session

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Redactor masks and filters session snapshots before they leave the
// process. The zero value is a no-op.
type Redactor struct {
	MaskURLQuery  bool
	MaskLocalPath bool
	MaskIDs       bool
	AllowedURLs   []string
	BlockedURLs   []string
}

// IsAllowed reports whether a session loaded from rawURL may be exposed.
// Patterns are path.Match globs over "host/path" (file URLs use the path
// alone). An empty URL is always allowed.
func (r *Redactor) IsAllowed(rawURL string) bool {
	if rawURL == "" {
		return true
	}
	key := matchKey(rawURL)

	if len(r.AllowedURLs) > 0 {
		allowed := false
		for _, pattern := range r.AllowedURLs {
			if matchPathOrParent(pattern, key) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	for _, pattern := range r.BlockedURLs {
		if matchPathOrParent(pattern, key) {
			return false
		}
	}
	return true
}

func matchKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Scheme == "" || u.Scheme == "file" {
		return u.Path
	}
	return u.Host + u.Path
}

// matchPathOrParent checks pattern against p and each of its parents, so
// "cdn.example.com/*" matches "cdn.example.com/a/b/page.yaml".
func matchPathOrParent(pattern, p string) bool {
	for ; p != "." && p != "" && p != "/" && p != path.Dir(p); p = path.Dir(p) {
		if matched, _ := path.Match(pattern, p); matched {
			return true
		}
	}
	return false
}

// Apply returns a masked copy of s. The original is never modified.
func (r *Redactor) Apply(s *Info) *Info {
	masked := s.Clone()

	if masked.URL != "" && (r.MaskURLQuery || r.MaskLocalPath) {
		masked.URL = r.maskURL(masked.URL)
	}
	if r.MaskIDs && masked.ID != "" {
		masked.ID = shortHash(masked.ID)
	}
	if r.MaskURLQuery && masked.LastError != "" {
		masked.LastError = stripQueries(masked.LastError)
	}
	return masked
}

func (r *Redactor) maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if r.MaskURLQuery {
		u.RawQuery = ""
		u.Fragment = ""
	}
	if r.MaskLocalPath && (u.Scheme == "" || u.Scheme == "file") {
		return path.Base(u.Path)
	}
	return u.String()
}

// stripQueries removes "?..." from every URL-looking token in msg.
func stripQueries(msg string) string {
	fields := strings.Fields(msg)
	for i, f := range fields {
		if strings.Contains(f, "://") {
			if j := strings.IndexByte(f, '?'); j >= 0 {
				fields[i] = f[:j]
			}
		}
	}
	return strings.Join(fields, " ")
}

// FilterSlice returns the allowed sessions with masking applied.
func (r *Redactor) FilterSlice(sessions []*Info) []*Info {
	result := make([]*Info, 0, len(sessions))
	for _, s := range sessions {
		if !r.IsAllowed(s.URL) {
			continue
		}
		result = append(result, r.Apply(s))
	}
	return result
}

func (r *Redactor) IsNoop() bool {
	return !r.MaskURLQuery && !r.MaskLocalPath && !r.MaskIDs &&
		len(r.AllowedURLs) == 0 && len(r.BlockedURLs) == 0
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
