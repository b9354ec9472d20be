// Package impact holds the copy and statistics shown on the Impact page.
package impact

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"connectkids/internal/counter"
)

//go:embed levels.yaml
var levelsYAML []byte

type Level struct {
	Level        int      `yaml:"level"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	Target       int64    `yaml:"target"`
	TargetLabel  string   `yaml:"target_label"`
	Timeframe    string   `yaml:"timeframe"`
	Icon         string   `yaml:"icon"`
	Color        string   `yaml:"color"`
	Achievements []string `yaml:"achievements"`
}

// HasTarget reports whether the level shows an animated number.
func (l Level) HasTarget() bool { return l.Target > 0 }

type Link struct {
	Label   string `yaml:"label"`
	Href    string `yaml:"href"`
	Primary bool   `yaml:"primary"`
}

type CallToAction struct {
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
	Links []Link `yaml:"links"`
}

type Page struct {
	Badge  string       `yaml:"badge"`
	Title  string       `yaml:"title"`
	Intro  string       `yaml:"intro"`
	Levels []Level      `yaml:"levels"`
	Note   string       `yaml:"note"`
	CTA    CallToAction `yaml:"cta"`

	// NoteHTML is Note rendered from markdown.
	NoteHTML template.HTML `yaml:"-"`
	// CounterDuration is the count-up length in milliseconds.
	CounterDuration int `yaml:"-"`
}

// Load parses the embedded page content.
func Load() (*Page, error) {
	return Parse(levelsYAML)
}

// Parse reads page content from YAML and renders the note.
func Parse(data []byte) (*Page, error) {
	var p Page
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse impact content: %w", err)
	}
	if len(p.Levels) == 0 {
		return nil, errors.New("impact content has no levels")
	}
	for i, l := range p.Levels {
		if l.Target < 0 {
			return nil, fmt.Errorf("level %d: negative target", l.Level)
		}
		if l.Level == 0 {
			p.Levels[i].Level = i + 1
		}
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(p.Note), &buf); err != nil {
		return nil, fmt.Errorf("render impact note: %w", err)
	}
	// goldmark drops raw HTML unless WithUnsafe is set
	p.NoteHTML = template.HTML(buf.String())
	p.CounterDuration = int(counter.DefaultDuration.Milliseconds())
	return &p, nil
}
