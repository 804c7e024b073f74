package gen

import (
	"go/ast"
	"go/types"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
)

const (
	classDirective       = "//bridge:class"
	overrideDirective    = "//bridge:override"
	constructorDirective = "//bridge:constructor"

	variantPath = "github.com/wippyai/classbridge/variant"
)

var basicTypes = map[string]bool{
	"bool": true, "string": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint8": true, "uint16": true, "uint32": true, "byte": true, "rune": true,
	"float32": true, "float64": true,
}

var variantTypes = map[string]bool{
	"Variant": true, "Vec2": true, "Vec3": true, "RGBA": true, "ObjectID": true,
}

// Load parses the packages matched by patterns, relative to dir, and scans
// the single package they resolve to.
func Load(dir string, patterns ...string) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDescribe, errors.KindInvalidInput, err, "load packages")
	}
	if len(pkgs) != 1 {
		return nil, errors.InvalidInput(errors.PhaseDescribe, "expected one package, got "+strconv.Itoa(len(pkgs)))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, errors.Wrap(errors.PhaseDescribe, errors.KindInvalidInput, pkg.Errors[0], "package "+pkg.PkgPath)
	}
	return ScanFiles(pkg.Name, pkg.PkgPath, pkg.Syntax)
}

// ScanFiles builds the model from parsed files of one package. Every
// unsupported field or malformed directive is reported; the model is
// returned only when there are none.
func ScanFiles(name, importPath string, files []*ast.File) (*PackageModel, error) {
	m := &PackageModel{Name: name, ImportPath: importPath}
	var errs errors.RegistrationErrors
	byType := make(map[string]int)

	for _, f := range files {
		variantName := importName(f, variantPath)
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				args, ok := directive(doc, classDirective)
				if !ok {
					continue
				}
				c, err := scanClass(ts, args, variantName)
				if err != nil {
					errs.Add(err)
					continue
				}
				byType[c.GoType] = len(m.Classes)
				m.Classes = append(m.Classes, c)
			}
		}
	}

	for _, f := range files {
		for _, decl := range f.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			if fd.Recv == nil {
				if _, ok := directive(fd.Doc, constructorDirective); ok {
					errs.Add(bindConstructor(m, byType, fd))
				}
				continue
			}
			idx, ok := byType[receiverType(fd)]
			if !ok || !fd.Name.IsExported() {
				continue
			}
			c := &m.Classes[idx]
			if args, ok := directive(fd.Doc, overrideDirective); ok {
				virtual := strings.TrimSpace(args)
				if virtual == "" {
					errs.Add(errors.New(errors.PhaseDescribe, errors.KindInvalidInput).
						Class(c.Name).
						Path(fd.Name.Name).
						Detail("%s needs a virtual method name", overrideDirective).
						Build())
					continue
				}
				c.Methods = append(c.Methods, MethodModel{Virtual: virtual, GoMethod: fd.Name.Name})
				continue
			}
			if virtual, ok := class.VirtualFor(fd.Name.Name); ok {
				c.Methods = append(c.Methods, MethodModel{Virtual: virtual, GoMethod: fd.Name.Name})
			}
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	if len(m.Classes) == 0 {
		return nil, errors.InvalidInput(errors.PhaseDescribe, "no "+classDirective+" types in "+name)
	}
	return m, nil
}

func scanClass(ts *ast.TypeSpec, args, variantName string) (ClassModel, error) {
	c := ClassModel{Name: ts.Name.Name, GoType: ts.Name.Name}
	for _, kv := range strings.Fields(args) {
		key, value, ok := strings.Cut(kv, "=")
		switch {
		case ok && key == "base":
			c.Base = value
		case ok && key == "name":
			c.Name = value
		default:
			return c, errors.New(errors.PhaseDescribe, errors.KindInvalidInput).
				Class(c.Name).
				Detail("unknown directive argument %q", kv).
				Build()
		}
	}

	st, ok := ts.Type.(*ast.StructType)
	if !ok || ts.TypeParams != nil {
		return c, errors.New(errors.PhaseDescribe, errors.KindUnsupported).
			Class(c.Name).
			GoType(types.ExprString(ts.Type)).
			Detail("only non-generic struct types can be classes").
			Build()
	}

	var errs errors.RegistrationErrors
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			continue
		}
		tag := ""
		if field.Tag != nil {
			raw, _ := strconv.Unquote(field.Tag.Value)
			tag = reflect.StructTag(raw).Get("bridge")
		}
		if tag == "-" {
			continue
		}
		for _, ident := range field.Names {
			if !ident.IsExported() {
				continue
			}
			f := FieldModel{GoField: ident.Name, GoType: types.ExprString(field.Type), Name: class.SnakeCase(ident.Name)}
			if tag != "" {
				name, opts, _ := strings.Cut(tag, ",")
				if name != "" {
					f.Name = name
				}
				f.Optional = opts == "optional"
			}
			if !supported(field.Type, variantName) {
				errs.Add(errors.New(errors.PhaseDescribe, errors.KindUnsupported).
					Class(c.Name).
					Path(f.Name).
					GoType(f.GoType).
					Detail("field type has no host representation").
					Build())
				continue
			}
			c.Fields = append(c.Fields, f)
		}
	}
	return c, errs.Err()
}

func bindConstructor(m *PackageModel, byType map[string]int, fd *ast.FuncDecl) error {
	invalid := func(detail string) error {
		return errors.New(errors.PhaseDescribe, errors.KindInvalidInput).
			Path(fd.Name.Name).
			Detail("%s", detail).
			Build()
	}
	res := fd.Type.Results
	if res == nil || res.NumFields() != 2 {
		return invalid("constructor must return (*T, error)")
	}
	star, ok := res.List[0].Type.(*ast.StarExpr)
	if !ok {
		return invalid("constructor must return a pointer")
	}
	ident, ok := star.X.(*ast.Ident)
	if !ok {
		return invalid("constructor must return a pointer to a local type")
	}
	idx, ok := byType[ident.Name]
	if !ok {
		return invalid(ident.Name + " is not a " + classDirective + " type")
	}
	c := &m.Classes[idx]
	if c.Constructor != "" {
		return errors.New(errors.PhaseDescribe, errors.KindInvalidInput).
			Class(c.Name).
			Path(fd.Name.Name).
			Detail("already constructed by %s", c.Constructor).
			Build()
	}
	c.Constructor = fd.Name.Name
	return nil
}

// supported mirrors variant.TagOf on syntax.
func supported(expr ast.Expr, variantName string) bool {
	switch t := expr.(type) {
	case *ast.Ident:
		return basicTypes[t.Name]
	case *ast.SelectorExpr:
		x, ok := t.X.(*ast.Ident)
		return ok && variantName != "" && x.Name == variantName && variantTypes[t.Sel.Name]
	case *ast.ArrayType:
		return t.Len == nil && supported(t.Elt, variantName)
	case *ast.MapType:
		key, ok := t.Key.(*ast.Ident)
		return ok && key.Name == "string" && supported(t.Value, variantName)
	}
	return false
}

func directive(doc *ast.CommentGroup, name string) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, c := range doc.List {
		if c.Text == name {
			return "", true
		}
		if rest, ok := strings.CutPrefix(c.Text, name+" "); ok {
			return rest, true
		}
	}
	return "", false
}

func receiverType(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return ""
	}
	t := fd.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	if ident, ok := t.(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

func importName(f *ast.File, path string) string {
	for _, imp := range f.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		if p != path {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return path[strings.LastIndex(path, "/")+1:]
	}
	return ""
}
