package adapter

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/util"
)

//go:embed templates/*.tmpl
var exportTemplateFS embed.FS

// exportTemplates is shared by every formatter; parsing happens once.
var exportTemplates = template.Must(template.New("export").Funcs(template.FuncMap{
	"add":    func(a, b int) int { return a + b },
	"rating": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
}).ParseFS(exportTemplateFS, "templates/*.tmpl"))

// ExportFormatter renders feedback and roleplay sessions as plain text for
// download. Layout lives in templates/.
type ExportFormatter struct {
	templates *template.Template
}

func NewExportFormatter() *ExportFormatter {
	return &ExportFormatter{templates: exportTemplates}
}

func (f *ExportFormatter) render(name string, view any) (string, error) {
	var b strings.Builder
	if err := f.templates.ExecuteTemplate(&b, name, view); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type feedbackView struct {
	Feedback      domain.FeedbackResult
	PersonaTitle  string
	ToneLabel     string
	StrongestLine string
	WeakestLine   string
	Comments      string
}

// FormatFeedback renders a single coaching verdict.
func (f *ExportFormatter) FormatFeedback(fb domain.FeedbackResult, personaKey, toneKey string) (string, error) {
	view := feedbackView{
		Feedback:      fb,
		PersonaTitle:  persona.Get(personaKey).Title,
		ToneLabel:     persona.Tone(toneKey).Label,
		StrongestLine: strings.TrimSpace(fb.StrongestLine),
		WeakestLine:   strings.TrimSpace(fb.WeakestLine),
		Comments:      strings.TrimSpace(fb.Comments),
	}
	out, err := f.render("feedback.tmpl", view)
	if err != nil {
		return "", fmt.Errorf("failed to render feedback export: %w", err)
	}
	return out, nil
}

type transcriptLine struct {
	Speaker string
	Text    string
}

type reportView struct {
	PersonaTitle string
	Generated    string
	Transcript   []transcriptLine
	Report       *domain.TrainingReport
}

// FormatSession renders the transcript followed by the report, or a pending
// note when the report has not been generated.
func (f *ExportFormatter) FormatSession(state domain.SessionState) (string, error) {
	p := persona.Get(state.PersonaKey)
	prospect := "Prospect (" + p.Title + ")"

	view := reportView{
		PersonaTitle: p.Title,
		Report:       state.Report,
		Transcript:   make([]transcriptLine, 0, len(state.Transcript)),
	}
	if state.Report != nil && !state.Report.GeneratedAt.IsZero() {
		view.Generated = util.FormatTimestamp(state.Report.GeneratedAt)
	}

	for _, t := range state.Transcript {
		speaker := "You"
		if t.Speaker == domain.SpeakerProspect {
			speaker = prospect
		}
		view.Transcript = append(view.Transcript, transcriptLine{Speaker: speaker, Text: t.Text})
	}

	out, err := f.render("report.tmpl", view)
	if err != nil {
		return "", fmt.Errorf("failed to render session export: %w", err)
	}
	return out, nil
}
