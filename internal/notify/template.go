package notify

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/stayadmin/internal/pkg/logger"
)

// TemplateService renders Liquid templates and caches parsed templates by
// key. Keys must change when the source changes.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTemplateService creates a template service with the booking filters
// registered.
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerFilters()
	return ts
}

func (ts *TemplateService) registerFilters() {
	// {{ alternate_contact_name | default: "No alternate contact" }}
	ts.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return fallback
			}
		case []string:
			if len(v) == 0 {
				return fallback
			}
		}
		return value
	})

	ts.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})

	ts.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	ts.engine.RegisterFilter("urlencode", url.QueryEscape)
	ts.engine.RegisterFilter("escape", html.EscapeString)

	// {{ services | sentence }} → "Catering, Music and Transport"
	ts.engine.RegisterFilter("sentence", func(value interface{}) string {
		items := toStrings(value)
		switch len(items) {
		case 0:
			return ""
		case 1:
			return items[0]
		}
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	})

	ts.engine.RegisterFilter("mask_email", func(email string) string {
		if !strings.Contains(email, "@") {
			return email
		}
		return logger.RedactEmail(email)
	})
}

func toStrings(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

// Render parses (or reuses the cached parse of) src and renders it with
// bindings. An empty cacheKey disables caching.
func (ts *TemplateService) Render(cacheKey, src string, bindings map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := ts.cache.Load(cacheKey); ok {
			return ts.execute(cached.(*liquid.Template), bindings)
		}
	}

	tpl, err := ts.engine.ParseString(src)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		ts.cache.Store(cacheKey, tpl)
	}
	return ts.execute(tpl, bindings)
}

func (ts *TemplateService) execute(tpl *liquid.Template, bindings map[string]interface{}) (string, error) {
	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// Validate reports whether src parses.
func (ts *TemplateService) Validate(src string) error {
	if _, err := ts.engine.ParseString(src); err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return nil
}
