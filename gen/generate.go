package gen

import (
	"bytes"
	"go/format"
	"text/template"

	"github.com/wippyai/classbridge/errors"
)

// Header marks generated files.
const Header = "// Code generated by bridgegen. DO NOT EDIT."

var fileTemplate = template.Must(template.New("bridge").Parse(Header + `

package {{.Name}}

import (
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/registry"
)

func init() {
{{- range .Classes}}
	registry.Declare(class.Build[{{.GoType}}]({{printf "%q" .Name}}).
{{- if .Base}}
		Extends({{printf "%q" .Base}}).
{{- end}}
{{- range .Fields}}
		{{if .Optional}}OptionalField{{else}}Field{{end}}({{printf "%q" .Name}}, {{printf "%q" .GoField}}).
{{- end}}
{{- range .Methods}}
		Method({{printf "%q" .Virtual}}, {{printf "%q" .GoMethod}}).
{{- end}}
{{- if .Constructor}}
		Construct({{.Constructor}}).
{{- end}}
		Class())
{{- end}}
}
`))

// Generate renders the registration file for m.
func Generate(m *PackageModel) ([]byte, error) {
	if m == nil || len(m.Classes) == 0 {
		return nil, errors.InvalidInput(errors.PhaseDescribe, "nothing to generate")
	}
	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, m); err != nil {
		return nil, errors.Wrap(errors.PhaseDescribe, errors.KindInvalidInput, err, "render")
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDescribe, errors.KindInvalidInput, err, "format generated source")
	}
	return out, nil
}
