package saferender

import (
	"bytes"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// fallbackSource is plain text, so autoescaping is switched off.
const fallbackSource = `{% autoescape off %}{{ title }}

[EN] This document is temporarily unavailable. A standard substitute has been
provided while our team reviews the template{% if reference %} (reference: {{ reference }}){% endif %}.
No action is required on your part; you will be notified when the full
document is available again.

[ES] Este documento no está disponible temporalmente. Se ha proporcionado un
sustituto estándar mientras nuestro equipo revisa la plantilla{% if reference %} (referencia: {{ reference }}){% endif %}.
No es necesario que haga nada; le avisaremos cuando el documento completo
vuelva a estar disponible.
{% endautoescape %}`

// staticFallback is served when the fallback template itself cannot render.
const staticFallback = `Document temporarily unavailable / Documento no disponible temporalmente

[EN] This document is temporarily unavailable. A standard substitute has been provided.
[ES] Este documento no está disponible temporalmente. Se ha proporcionado un sustituto estándar.
`

const defaultFallbackTitle = "Document temporarily unavailable / Documento no disponible temporalmente"

var (
	fallbackOnce sync.Once
	fallbackTpl  *pongo2.Template
	fallbackErr  error
)

func fallbackTemplate() (*pongo2.Template, error) {
	fallbackOnce.Do(func() {
		fallbackTpl, fallbackErr = pongo2.FromString(fallbackSource)
	})
	return fallbackTpl, fallbackErr
}

// Fallback renders the substitute document for a template. It always
// returns a non-empty document.
func Fallback(title, reference string) string {
	tpl, err := fallbackTemplate()
	if err != nil {
		return staticFallback
	}
	if title == "" {
		title = defaultFallbackTitle
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteWriter(pongo2.Context{"title": title, "reference": reference}, &buf); err != nil {
		return staticFallback
	}
	return buf.String()
}
