package mailing

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

var (
	reHTMLAnchor       = regexp.MustCompile(`(?i)<a\s[^>]*href=["']([^"']*)["'][^>]*>(.*?)</a>`)
	reHTMLBlockBreak   = regexp.MustCompile(`(?i)<\s*(?:br|p|div)[^>]*/?\s*>`)
	reHTMLClosingBlock = regexp.MustCompile(`(?i)</\s*(?:p|div)\s*>`)
	reHTMLHead         = regexp.MustCompile(`(?is)<(?:head|style)[^>]*>.*?</(?:head|style)>`)
	reHTMLAllTags      = regexp.MustCompile(`<[^>]*>`)
	reMultipleNewlines = regexp.MustCompile(`\n{3,}`)
	reMultipleSpaces   = regexp.MustCompile(`[ \t]+`)
)

// Renderer renders liquid templates with a parse cache.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the outreach filters registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})

	r.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	r.engine.RegisterFilter("urlencode", url.QueryEscape)
	r.engine.RegisterFilter("escape", html.EscapeString)
}

// Render renders tpl with vars. A non-empty cacheKey caches the parsed
// template; callers must use a key that changes whenever tpl does.
func (r *Renderer) Render(cacheKey, tpl string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(vars)
		}
	}

	parsed, err := r.engine.ParseString(tpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, parsed)
	}

	out, err := parsed.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// HTMLToText converts an HTML body to its plain-text alternative.
func HTMLToText(htmlStr string) string {
	if htmlStr == "" {
		return ""
	}
	s := reHTMLHead.ReplaceAllString(htmlStr, "")
	s = reHTMLAnchor.ReplaceAllString(s, "$2 ($1)")
	s = reHTMLBlockBreak.ReplaceAllString(s, "\n")
	s = reHTMLClosingBlock.ReplaceAllString(s, "\n")
	s = reHTMLAllTags.ReplaceAllString(s, "")
	s = strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reMultipleSpaces.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = reMultipleNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
