package main

import (
	"embed"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"time"

	"connectkids/internal/counter"
	"connectkids/internal/impact"
	"connectkids/internal/model"
	"connectkids/internal/opportunity"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplates = map[string]string{
	"loading":          "opportunity_loading.tmpl",
	"denied":           "opportunity_denied.tmpl",
	"submitted":        "opportunity_submitted.tmpl",
	"create":           "opportunity_form.tmpl",
	"impact":           "impact.tmpl",
	"opportunities":    "opportunities.tmpl",
	"complete-profile": "complete_profile.tmpl",
	"login":            "login.tmpl",
	"error":            "error.tmpl",
}

// loadTemplates parses every page together with the base layout.
func loadTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"count":         counter.Format,
		"interestLabel": func(i model.Interest) string { return i.Label() },
		"ageLabel":      func(a model.AgeRange) string { return a.Label() },
		"date":          func(t time.Time) string { return t.Format("Jan 2, 2006") },
	}

	templates := make(map[string]*template.Template, len(pageTemplates))
	for name, file := range pageTemplates {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.tmpl", "templates/"+file)
		if err != nil {
			return nil, fmt.Errorf("parse %s templates: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

type metaRefresh struct {
	Seconds int
	URL     string
}

// Tag renders the refresh directive. html/template will not put a URL into
// a meta content attribute, so the tag is built here from trusted values.
func (m metaRefresh) Tag() template.HTML {
	return template.HTML(fmt.Sprintf(`<meta http-equiv="refresh" content="%d;url=%s">`,
		m.Seconds, html.EscapeString(m.URL)))
}

type basePageData struct {
	PageTitle   string
	CurrentYear int
	User        *model.User
	CSRFField   template.HTML
	LocalLogin  bool
	Refresh     *metaRefresh
	Scripts     []string
}

type opportunityFormData struct {
	basePageData
	Draft       model.Draft
	AgeRanges   []model.Option
	Interests   []model.Option
	Errors      opportunity.FieldErrors
	Alert       string
	CreateError string
}

type linkPageData struct {
	basePageData
	ListingsURL string
}

type impactPageData struct {
	basePageData
	Impact *impact.Page
}

type listingsPageData struct {
	basePageData
	Opportunities []model.Opportunity
	Error         string
	CanCreate     bool
}

type profilePageData struct {
	basePageData
	Roles   []model.Option
	FromURL string
	Error   string
}

type loginPageData struct {
	basePageData
	FromURL string
	Email   string
	Error   string
}

type errorPageData struct {
	basePageData
	Message string
}

func (s *Server) render(w http.ResponseWriter, name string, status int, data any) {
	tmpl, ok := s.templates[name]
	if !ok {
		s.logger.Error("unknown template", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.logger.Error("render template", "template", name, "error", err)
	}
}
