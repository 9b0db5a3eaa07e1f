package browser

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/maltedev/catalog-scraper/internal/fingerprint"
)

//go:embed stealth.js.tmpl
var stealthSource string

var stealthTemplate = template.Must(template.New("stealth").Funcs(template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).Parse(stealthSource))

// InitScript renders the navigator and WebGL overrides for profile. It runs
// in every frame before any page script.
func InitScript(profile fingerprint.Profile) (string, error) {
	var buf bytes.Buffer
	if err := stealthTemplate.Execute(&buf, profile); err != nil {
		return "", fmt.Errorf("failed to render init script: %w", err)
	}
	return buf.String(), nil
}
