package notify

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates/*.txt
var builtin embed.FS

const subjectPrefix = "Subject:"

// Template is a parsed mail template. Placeholders are {{name}}, {{pin}}, {{rsvpUrl}} and {{email}}.
type Template struct {
	Name    string
	Subject string
	Body    string
}

// Vars are the values substituted into a template.
type Vars struct {
	Name    string
	PIN     string
	RSVPURL string
	Email   string
}

// Render substitutes vars into the subject and body.
func (t *Template) Render(v Vars) (subject, body string) {
	r := strings.NewReplacer(
		"{{name}}", v.Name,
		"{{pin}}", v.PIN,
		"{{rsvpUrl}}", v.RSVPURL,
		"{{email}}", v.Email,
	)
	return r.Replace(t.Subject), r.Replace(t.Body)
}

// LoadTemplate reads name.txt from dir when dir is set and the file exists there,
// otherwise from the built-in set.
func LoadTemplate(dir, name string) (*Template, error) {
	file := name + ".txt"
	var data []byte
	var err error
	if dir != "" {
		data, err = os.ReadFile(filepath.Join(dir, file))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
	}
	if data == nil {
		data, err = builtin.ReadFile("templates/" + file)
		if err != nil {
			return nil, fmt.Errorf("unknown template %q", name)
		}
	}
	return parseTemplate(name, string(data))
}

// parseTemplate splits a leading "Subject:" line from the body.
func parseTemplate(name, text string) (*Template, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	first, rest, _ := strings.Cut(text, "\n")
	if !strings.HasPrefix(first, subjectPrefix) {
		return nil, fmt.Errorf("template %s: first line must be %q", name, subjectPrefix)
	}
	subject := strings.TrimSpace(strings.TrimPrefix(first, subjectPrefix))
	if subject == "" {
		return nil, fmt.Errorf("template %s: empty subject", name)
	}
	body := strings.TrimLeft(rest, "\n")
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("template %s: empty body", name)
	}
	return &Template{Name: name, Subject: subject, Body: body}, nil
}
