package class

import (
	"fmt"
	"strings"
)

// RenderWIT renders descriptors as a WIT package, one interface per class.
// Fields become a record, overrides become functions over host values. The
// output documents the registry for tooling; it is not consumed by the host.
func RenderWIT(pkg string, descs []Descriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "package %s;\n", pkg)

	for _, d := range descs {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "/// %s extends %s (%s constructor", d.Name, d.Base, d.Constructor)
		if d.Teardown {
			sb.WriteString(", teardown")
		}
		sb.WriteString(")\n")
		fmt.Fprintf(&sb, "interface %s {\n", kebabCase(d.Name))

		if len(d.Fields) > 0 {
			sb.WriteString("  record fields {\n")
			for _, f := range d.Fields {
				typ := f.Tag.WIT()
				if f.Optional {
					typ = "option<" + typ + ">"
				}
				fmt.Fprintf(&sb, "    %s: %s,\n", kebabCase(f.Name), typ)
			}
			sb.WriteString("  }\n")
		}

		for _, v := range d.Virtuals {
			fmt.Fprintf(&sb, "  %s: func(args: list<variant>) -> variant;\n", kebabCase(v))
		}
		sb.WriteString("}\n")
	}

	return sb.String()
}
