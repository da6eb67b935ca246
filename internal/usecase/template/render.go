// Package template resolves template codes into rendered subject and body text.
package template

import (
	"context"
	"fmt"
	"regexp"

	"notification-pipeline/internal/domain/entity"
)

// Resolver turns (code, language, variables) into rendered content.
// Implementations return entity.ErrTemplateNotFound when no active template exists.
type Resolver interface {
	Resolve(ctx context.Context, code, language string, variables map[string]any) (*entity.RenderedContent, error)
}

// placeholder matches {{key}} with optional inner whitespace.
var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render substitutes placeholders in text. Unknown keys and nil values render as "".
func Render(text string, variables map[string]any) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := variables[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	})
}

// Substitute renders both subject and body of tpl.
func Substitute(tpl *entity.Template, variables map[string]any) *entity.RenderedContent {
	return &entity.RenderedContent{
		Subject: Render(tpl.Subject, variables),
		Body:    Render(tpl.Body, variables),
	}
}
