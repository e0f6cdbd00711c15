// Package content holds the marketing copy served by the site pages.
package content

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

//go:embed site.yaml
var siteYAML []byte

const (
	StatusComingSoon = "coming-soon"
	StatusLive       = "live"
)

type Link struct {
	Name string `yaml:"name" json:"name"`
	Href string `yaml:"href" json:"href"`
}

type Value struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

type Stat struct {
	Number string `yaml:"number" json:"number"`
	Label  string `yaml:"label" json:"label"`
}

type About struct {
	Headline    string   `yaml:"headline"`
	Subheadline string   `yaml:"subheadline"`
	Story       []string `yaml:"story"`
	Mission     string   `yaml:"mission"`
	Values      []Value  `yaml:"values"`
	Stats       []Stat   `yaml:"stats"`
}

type Offering struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Features    []string `yaml:"features" json:"features"`
}

type Services struct {
	Headline  string     `yaml:"headline"`
	Offerings []Offering `yaml:"offerings"`
	Process   []Value    `yaml:"process"`
	AppTypes  []string   `yaml:"app_types"`
}

// Agent is one entry of the agents catalog.
type Agent struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Subdomain   string   `yaml:"subdomain" json:"subdomain"`
	Features    []string `yaml:"features" json:"features"`
	Status      string   `yaml:"status" json:"status"`
}

// URL is the public address of the agent.
func (a Agent) URL() string {
	return "https://" + a.Subdomain
}

// ComingSoon reports whether the agent is not yet launched.
func (a Agent) ComingSoon() bool {
	return a.Status == StatusComingSoon
}

type Agents struct {
	Headline string  `yaml:"headline"`
	Intro    string  `yaml:"intro"`
	Items    []Agent `yaml:"items"`
}

type Contact struct {
	Headline  string `yaml:"headline"`
	FormTitle string `yaml:"form_title"`
	Success   string `yaml:"success"`
	Failure   string `yaml:"failure"`
}

// Site is the full copy deck.
type Site struct {
	Brand        string   `yaml:"brand"`
	BuilderBrand string   `yaml:"builder_brand"`
	Tagline      string   `yaml:"tagline"`
	Copyright    string   `yaml:"copyright"`
	Navigation   []Link   `yaml:"navigation"`
	FooterLinks  []Link   `yaml:"footer_links"`
	About        About    `yaml:"about"`
	Services     Services `yaml:"services"`
	Agents       Agents   `yaml:"agents"`
	Contact      Contact  `yaml:"contact"`

	PrivacyMarkdown string `yaml:"privacy_markdown"`
	TermsMarkdown   string `yaml:"terms_markdown"`

	Privacy template.HTML `yaml:"-"`
	Terms   template.HTML `yaml:"-"`
}

// Load parses the embedded copy deck and renders the legal pages.
func Load() (*Site, error) {
	return Parse(siteYAML)
}

// Parse decodes a copy deck from raw YAML.
func Parse(raw []byte) (*Site, error) {
	var site Site
	if err := yaml.Unmarshal(raw, &site); err != nil {
		return nil, fmt.Errorf("parse site content: %w", err)
	}
	if site.Brand == "" {
		return nil, errors.New("site content: brand is required")
	}
	seen := make(map[string]bool, len(site.Agents.Items))
	for _, agent := range site.Agents.Items {
		if agent.ID == "" || seen[agent.ID] {
			return nil, fmt.Errorf("site content: agent id %q missing or duplicated", agent.ID)
		}
		seen[agent.ID] = true
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var err error
	if site.Privacy, err = renderMarkdown(md, site.PrivacyMarkdown); err != nil {
		return nil, fmt.Errorf("render privacy policy: %w", err)
	}
	if site.Terms, err = renderMarkdown(md, site.TermsMarkdown); err != nil {
		return nil, fmt.Errorf("render terms: %w", err)
	}
	return &site, nil
}

// Agent looks up an agent by id.
func (s *Site) Agent(id string) (Agent, bool) {
	for _, agent := range s.Agents.Items {
		if agent.ID == id {
			return agent, true
		}
	}
	return Agent{}, false
}

func renderMarkdown(md goldmark.Markdown, src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	// goldmark drops raw HTML by default, so the output is safe to embed.
	return template.HTML(buf.String()), nil
}
