package utils

import (
	"bytes"
	"strings"
	"text/template"
)

// RenderTemplate expands a text/template string against data. Strings without
// actions are returned unchanged; unknown keys are an error.
func RenderTemplate(value string, data interface{}) (string, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}
	tmpl, err := template.New("value").Option("missingkey=error").Parse(value)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
