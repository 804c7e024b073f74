package gen

// PackageModel is everything bridgegen found in one Go package.
type PackageModel struct {
	Name       string
	ImportPath string
	Classes    []ClassModel
}

// ClassModel describes one //bridge:class struct.
type ClassModel struct {
	Name        string
	GoType      string
	Base        string
	Constructor string
	Fields      []FieldModel
	Methods     []MethodModel
}

// FieldModel is an exposed struct field.
type FieldModel struct {
	Name     string
	GoField  string
	GoType   string
	Optional bool
}

// MethodModel binds a virtual method to a Go method.
type MethodModel struct {
	Virtual  string
	GoMethod string
}
