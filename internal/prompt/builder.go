// Package prompt materializes structured scene descriptions into the text
// prompts sent to the video collaborator.
package prompt

import (
	"bytes"
	"errors"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Scene is the structured form of a generation prompt.
type Scene struct {
	Character string `json:"character"`
	Product   string `json:"product"`
	Setting   string `json:"setting"`
	Action    string `json:"action"`
	Mood      string `json:"mood"`
	Camera    string `json:"camera"`
	Dialogue  string `json:"dialogue"`
}

// Empty reports whether no field carries content.
func (s Scene) Empty() bool {
	return strings.TrimSpace(s.Character+s.Product+s.Setting+s.Action+s.Mood+s.Camera+s.Dialogue) == ""
}

var ErrEmptyScene = errors.New("prompt: scene has no content")

const enTemplate = `{{.Character}}{{with .Product}} presenting {{.}}{{end}}{{with .Setting}}, in {{.}}{{end}}.
{{- with .Action}} {{.}}.{{end}}
{{- with .Mood}} Mood: {{.}}.{{end}}
{{- with .Camera}} Camera: {{.}}.{{end}}
{{- with .Dialogue}} The character says: "{{.}}".{{end}} Keep the character's face and outfit consistent with the reference photo.`

const idTemplate = `{{.Character}}{{with .Product}} menampilkan {{.}}{{end}}{{with .Setting}}, di {{.}}{{end}}.
{{- with .Action}} {{.}}.{{end}}
{{- with .Mood}} Suasana: {{.}}.{{end}}
{{- with .Camera}} Kamera: {{.}}.{{end}}
{{- with .Dialogue}} Karakter berkata: "{{.}}".{{end}} Pertahankan wajah dan pakaian karakter sesuai foto referensi.`

// Builder renders scenes per locale.
type Builder struct {
	templates map[string]*template.Template
	titles    map[string]cases.Caser
}

func NewBuilder() *Builder {
	return &Builder{
		templates: map[string]*template.Template{
			"en": template.Must(template.New("en").Parse(enTemplate)),
			"id": template.Must(template.New("id").Parse(idTemplate)),
		},
		titles: map[string]cases.Caser{
			"en": cases.Title(language.English),
			"id": cases.Title(language.Indonesian),
		},
	}
}

// Build renders scene in locale, falling back to English.
func (b *Builder) Build(scene Scene, locale string) (string, error) {
	if scene.Empty() {
		return "", ErrEmptyScene
	}
	locale = normalizeLocale(locale)
	tmpl := b.templates[locale]
	title := b.titles[locale]

	scene = trimScene(scene)
	if scene.Character == "" {
		if locale == "id" {
			scene.Character = "Karakter"
		} else {
			scene.Character = "The character"
		}
	} else {
		scene.Character = title.String(scene.Character)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, scene); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(buf.String()), " "), nil
}

func trimScene(s Scene) Scene {
	clean := func(v string) string {
		return strings.TrimRight(strings.TrimSpace(v), ".")
	}
	return Scene{
		Character: clean(s.Character),
		Product:   clean(s.Product),
		Setting:   clean(s.Setting),
		Action:    clean(s.Action),
		Mood:      clean(s.Mood),
		Camera:    clean(s.Camera),
		Dialogue:  strings.TrimSpace(s.Dialogue),
	}
}

func normalizeLocale(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	if base.String() == "id" {
		return "id"
	}
	return "en"
}
