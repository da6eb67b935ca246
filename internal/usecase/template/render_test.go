package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"notification-pipeline/internal/domain/entity"
	tplUC "notification-pipeline/internal/usecase/template"
)

func TestRender(t *testing.T) {
	vars := map[string]any{
		"name":  "Ana",
		"count": 3,
		"empty": nil,
		"link":  "https://example.com/a?b=c",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello", "Hello"},
		{"simple", "Hi {{name}}", "Hi Ana"},
		{"spaces", "Hi {{  name }}!", "Hi Ana!"},
		{"number", "{{count}} new", "3 new"},
		{"missing renders empty", "Hi {{nickname}}.", "Hi ."},
		{"nil renders empty", "[{{empty}}]", "[]"},
		{"repeated", "{{name}}/{{name}}", "Ana/Ana"},
		{"link", "Open {{link}}", "Open https://example.com/a?b=c"},
		{"unbalanced untouched", "{{name", "{{name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tplUC.Render(tt.in, vars))
		})
	}
}

func TestRender_NilVariables(t *testing.T) {
	assert.Equal(t, "Hi ", tplUC.Render("Hi {{name}}", nil))
}

func TestSubstitute(t *testing.T) {
	tpl := &entity.Template{Subject: "Welcome", Body: "Hi {{name}}"}

	got := tplUC.Substitute(tpl, map[string]any{"name": "Ana"})

	assert.Equal(t, &entity.RenderedContent{Subject: "Welcome", Body: "Hi Ana"}, got)
}
