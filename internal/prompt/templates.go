package prompt

import (
	"embed"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	roleplaySystemTemplate = "roleplay_system.tmpl"
	feedbackSystemTemplate = "feedback_system.tmpl"
)

// systemPrompts are parsed once; a broken embedded template fails at startup.
var systemPrompts = template.Must(
	template.New("system").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl"),
)

func renderRoleplay(vars RoleplayVars) (string, error) {
	return renderSystem(roleplaySystemTemplate, vars)
}

func renderFeedback(vars FeedbackVars) (string, error) {
	return renderSystem(feedbackSystemTemplate, vars)
}

func renderSystem(name string, vars any) (string, error) {
	var b strings.Builder
	if err := systemPrompts.ExecuteTemplate(&b, name, vars); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
