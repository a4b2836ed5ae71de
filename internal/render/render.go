package render

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/oshokin/dynamic-timers/internal/logger"
)

// Data is the rendering context built at dispatch time. Templates observe
// the state of the system at the firing moment, never at creation time.
type Data struct {
	// Now is the wall-clock instant the timer fired.
	Now time.Time
	// Timer is the name of the firing timer.
	Timer string
	// Groups are the firing timer's group memberships.
	Groups []string
}

// Renderer substitutes template markup in action payloads against a Data
// context. Implementations must not mutate their input.
type Renderer interface {
	Render(ctx context.Context, value any, data Data) any
	RenderMap(ctx context.Context, m map[string]any, data Data) map[string]any
}

// TemplateRenderer renders string leaves with text/template. A value that
// fails to parse or execute is passed through unchanged with a warning, so
// one bad template cannot block an action list.
type TemplateRenderer struct{}

// NewTemplateRenderer creates a TemplateRenderer.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// funcs are the helper functions available inside templates.
func funcs(data Data) template.FuncMap {
	return template.FuncMap{
		"now": func() time.Time {
			return data.Now
		},
		"timestamp": func() string {
			return data.Now.Format(time.RFC3339)
		},
	}
}

// Render recursively walks maps and lists, rendering every string leaf.
func (r *TemplateRenderer) Render(ctx context.Context, value any, data Data) any {
	switch v := value.(type) {
	case map[string]any:
		return r.RenderMap(ctx, v, data)
	case []any:
		rendered := make([]any, len(v))
		for i := range v {
			rendered[i] = r.Render(ctx, v[i], data)
		}

		return rendered
	case string:
		return r.renderString(ctx, v, data)
	default:
		return value
	}
}

// RenderMap renders every value of a payload mapping.
func (r *TemplateRenderer) RenderMap(ctx context.Context, m map[string]any, data Data) map[string]any {
	if m == nil {
		return nil
	}

	rendered := make(map[string]any, len(m))
	for k, v := range m {
		rendered[k] = r.Render(ctx, v, data)
	}

	return rendered
}

// renderString substitutes template markup in a single string.
// Strings without template markup are returned as-is.
func (r *TemplateRenderer) renderString(ctx context.Context, s string, data Data) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	tpl, err := template.New("payload").Funcs(funcs(data)).Parse(s)
	if err != nil {
		logger.WarnKV(ctx, "Failed to parse payload template", "template", s, "error", err)

		return s
	}

	var builder strings.Builder
	if err = tpl.Execute(&builder, data); err != nil {
		logger.WarnKV(ctx, "Failed to render payload template", "template", s, "error", err)

		return s
	}

	return builder.String()
}
