package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

var subjects = map[Kind]string{
	KindWelcome:       "Welcome to %s",
	KindVerifyCode:    "Your %s verification code",
	KindVerifySuccess: "Your %s email is verified",
	KindResetLink:     "Reset your %s password",
	KindResetSuccess:  "Your %s password was changed",
}

// Message is a rendered notification.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer turns a Kind plus substitutions into a Message.
type Renderer struct {
	appName string
	html    map[Kind]*htmltpl.Template
	text    map[Kind]*texttpl.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(appName string) (*Renderer, error) {
	r := &Renderer{
		appName: appName,
		html:    make(map[Kind]*htmltpl.Template, len(subjects)),
		text:    make(map[Kind]*texttpl.Template, len(subjects)),
	}
	for kind := range subjects {
		h, err := htmltpl.New(string(kind)+".html").Option("missingkey=zero").
			ParseFS(templateFS, "templates/"+string(kind)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s html template: %w", kind, err)
		}
		t, err := texttpl.New(string(kind)+".txt").Option("missingkey=zero").
			ParseFS(templateFS, "templates/"+string(kind)+".txt")
		if err != nil {
			return nil, fmt.Errorf("parse %s text template: %w", kind, err)
		}
		r.html[kind] = h
		r.text[kind] = t
	}
	return r, nil
}

// Render executes both templates of kind. appName is always available to
// the templates; subs may override any other key.
func (r *Renderer) Render(kind Kind, subs map[string]string) (*Message, error) {
	subject, ok := subjects[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	data := make(map[string]string, len(subs)+1)
	for k, v := range subs {
		data[k] = v
	}
	data["appName"] = r.appName

	var html, text bytes.Buffer
	if err := r.html[kind].Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}
	if err := r.text[kind].Execute(&text, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}

	return &Message{
		Subject: fmt.Sprintf(subject, r.appName),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
