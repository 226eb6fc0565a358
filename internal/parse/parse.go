// Package parse locates edit landmarks in TypeScript sources using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Cipahi/ng-toolkit/internal/lang"
	"github.com/Cipahi/ng-toolkit/internal/model"
)

// landmarkKind is the pattern capture that identifies what a match found.
type landmarkKind string

const (
	classDef  landmarkKind = "definition.class"
	methodDef landmarkKind = "definition.method"
	importRef landmarkKind = "reference.import"
	exportRef landmarkKind = "reference.export"
	callRef   landmarkKind = "reference.call"
)

const bootstrapCall = "bootstrapModule"

var landmarkKinds = map[string]landmarkKind{
	string(classDef):  classDef,
	string(methodDef): methodDef,
	string(importRef): importRef,
	string(exportRef): exportRef,
	string(callRef):   callRef,
}

// Import is an import statement.
type Import struct {
	Module string
	Names  []string // local bindings
	Start  int
	End    int
	// NamedOpen and NamedClose are the offsets of the braces of the named
	// import list, or -1 without one. LastSpecifierEnd is -1 for `{}`.
	NamedOpen        int
	NamedClose       int
	LastSpecifierEnd int
	TypeOnly         bool // import type { ... }
}

// Export is a re-export statement of the form `export { ... } from '<module>'`.
type Export struct {
	Module string
	Names  []string
	Start  int
	End    int
}

// Param is a constructor or method parameter.
type Param struct {
	Name      string
	Type      string
	Start     int
	End       int
	NameStart int
	// Property is set for parameter properties (an accessibility modifier
	// or readonly), which also declare a class member.
	Property bool
}

// Method is a method_definition inside a class body.
type Method struct {
	Name   string
	Start  int
	End    int
	Params []Param
	// ParamsOpen and ParamsClose are the offsets of '(' and ')'.
	ParamsOpen  int
	ParamsClose int
	Body        model.MethodBodyBounds
	HasBody     bool
}

// ArrayLit is an array literal stored under Key in a decorator's object argument.
type ArrayLit struct {
	Key      string
	Elements []string
	// Open and Close are the offsets of '[' and ']'.
	Open  int
	Close int
	// LastStart and LastEnd bound the last element, -1 when empty.
	LastStart int
	LastEnd   int
}

// Contains reports whether name is one of the array's elements.
func (a ArrayLit) Contains(name string) bool {
	for _, e := range a.Elements {
		if e == name {
			return true
		}
	}
	return false
}

// Decorator is a class decorator such as @NgModule({...}).
type Decorator struct {
	Name   string
	Arrays map[string]ArrayLit
	// ObjectOpen and ObjectClose are the offsets of the braces of the first
	// object argument, or -1 when the decorator has none.
	ObjectOpen  int
	ObjectClose int
}

// Class is a class declaration.
type Class struct {
	Name  string
	Start int
	End   int
	// NameEnd is where an implements clause goes when the class has no heritage.
	NameEnd       int
	HeritageEnd   int // -1 without extends/implements
	ImplementsEnd int // -1 without an implements clause
	Implements    []string
	// BodyOpen and BodyClose are the offsets of the class body braces.
	BodyOpen   int
	BodyClose  int
	Decorators []Decorator
	Methods    []Method
	Fields     []string
}

// Method returns the first method called name.
func (c *Class) Method(name string) (Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Constructor returns the class constructor, if declared.
func (c *Class) Constructor() (Method, bool) {
	return c.Method("constructor")
}

// Decorator returns the decorator called name.
func (c *Class) Decorator(name string) (Decorator, bool) {
	for _, d := range c.Decorators {
		if d.Name == name {
			return d, true
		}
	}
	return Decorator{}, false
}

// ImplementsInterface reports whether iface is listed in the class's implements clause.
func (c *Class) ImplementsInterface(iface string) bool {
	for _, i := range c.Implements {
		if i == iface {
			return true
		}
	}
	return false
}

// File holds the landmarks of one parsed source file. Offsets are byte
// offsets into Source.
type File struct {
	Source  []byte
	Classes []Class
	Imports []Import
	Exports []Export
	// BootstrapModule is the identifier passed to the first
	// .bootstrapModule(...) call, or "".
	BootstrapModule string
	HasErrors       bool
}

// Source parses TypeScript text and extracts its landmarks.
func Source(ctx context.Context, source []byte) (*File, error) {
	l := lang.TypeScript
	query, err := l.GetLandmarkQuery()
	if err != nil {
		return nil, err
	}
	parser := l.NewParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing typescript: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	f := &File{Source: source, HasErrors: root.HasError()}
	if len(source) == 0 {
		return f, nil
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	classes := make(map[uint32]*Class)
	var methods []*sitter.Node

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var kind landmarkKind
		var defNode, nameNode *sitter.Node
		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			switch cname {
			case "name", "source":
				nameNode = c.Node
			default:
				if k, ok := landmarkKinds[cname]; ok {
					kind = k
					defNode = c.Node
				}
			}
		}
		if defNode == nil || nameNode == nil {
			continue
		}

		switch kind {
		case classDef:
			c := buildClass(defNode, nameNode, source)
			classes[defNode.StartByte()] = &c
		case methodDef:
			methods = append(methods, defNode)
		case importRef:
			f.Imports = append(f.Imports, buildImport(defNode, nameNode, source))
		case exportRef:
			f.Exports = append(f.Exports, buildExport(defNode, nameNode, source))
		case callRef:
			if f.BootstrapModule == "" && lang.NodeText(nameNode, source) == bootstrapCall {
				f.BootstrapModule = firstIdentifierArg(defNode, source)
			}
		}
	}

	for _, m := range methods {
		cls := findEnclosingClass(m)
		if cls == nil {
			continue
		}
		if c, ok := classes[cls.StartByte()]; ok {
			c.Methods = append(c.Methods, buildMethod(m, source))
		}
	}

	for _, c := range classes {
		sort.Slice(c.Methods, func(i, j int) bool { return c.Methods[i].Start < c.Methods[j].Start })
		f.Classes = append(f.Classes, *c)
	}
	sort.Slice(f.Classes, func(i, j int) bool { return f.Classes[i].Start < f.Classes[j].Start })
	sort.Slice(f.Imports, func(i, j int) bool { return f.Imports[i].Start < f.Imports[j].Start })
	sort.Slice(f.Exports, func(i, j int) bool { return f.Exports[i].Start < f.Exports[j].Start })

	return f, nil
}

// Class returns the class called name.
func (f *File) Class(name string) (*Class, bool) {
	for i := range f.Classes {
		if f.Classes[i].Name == name {
			return &f.Classes[i], true
		}
	}
	return nil, false
}

// FirstClass returns the first class declared in the file.
func (f *File) FirstClass() (*Class, bool) {
	if len(f.Classes) == 0 {
		return nil, false
	}
	return &f.Classes[0], true
}

// ClassWithDecorator returns the first class carrying the named decorator.
func (f *File) ClassWithDecorator(decorator string) (*Class, bool) {
	for i := range f.Classes {
		if _, ok := f.Classes[i].Decorator(decorator); ok {
			return &f.Classes[i], true
		}
	}
	return nil, false
}

// ImportSource returns the module specifier symbol is imported from.
func (f *File) ImportSource(symbol string) (string, bool) {
	for _, imp := range f.Imports {
		for _, n := range imp.Names {
			if n == symbol {
				return imp.Module, true
			}
		}
	}
	return "", false
}

// Imported reports whether symbol is imported from module.
func (f *File) Imported(symbol, module string) bool {
	for _, imp := range f.Imports {
		if imp.Module != module {
			continue
		}
		for _, n := range imp.Names {
			if n == symbol {
				return true
			}
		}
	}
	return false
}

// NamedImport returns the first value import from module that has a
// named import list.
func (f *File) NamedImport(module string) (Import, bool) {
	for _, imp := range f.Imports {
		if imp.Module == module && imp.NamedOpen >= 0 && !imp.TypeOnly {
			return imp, true
		}
	}
	return Import{}, false
}

// ResolveImport returns the project path of the file symbol is imported
// from, relative to fromFile. Package imports are not resolved.
func (f *File) ResolveImport(fromFile, symbol string) (string, bool) {
	spec, ok := f.ImportSource(symbol)
	if !ok || !strings.HasPrefix(spec, ".") {
		return "", false
	}
	return ResolveRelative(fromFile, spec), true
}

// ResolveRelative joins a relative module specifier onto the directory of
// fromFile and appends the .ts extension.
func ResolveRelative(fromFile, spec string) string {
	p := path.Join(path.Dir(fromFile), spec)
	if path.Ext(p) != ".ts" {
		p += ".ts"
	}
	return p
}

// FindMethodBody returns the body bounds of the first method called method.
// It reports false when no such method exists or the source cannot be parsed.
func FindMethodBody(source []byte, method string) (model.MethodBodyBounds, bool) {
	return FindClassMethodBody(source, "", method)
}

// FindClassMethodBody is FindMethodBody restricted to the class called
// class. An empty class searches every class in source order.
func FindClassMethodBody(source []byte, class, method string) (model.MethodBodyBounds, bool) {
	f, err := Source(context.Background(), source)
	if err != nil {
		return model.MethodBodyBounds{}, false
	}
	for i := range f.Classes {
		if class != "" && f.Classes[i].Name != class {
			continue
		}
		if m, ok := f.Classes[i].Method(method); ok && m.HasBody {
			return m.Body, true
		}
	}
	return model.MethodBodyBounds{}, false
}

// FindServerModuleExport returns the module specifier of the first
// `export { ... } from '<path>'` statement in source order.
func FindServerModuleExport(source []byte) (string, bool) {
	f, err := Source(context.Background(), source)
	if err != nil || len(f.Exports) == 0 {
		return "", false
	}
	return f.Exports[0].Module, true
}

func buildClass(node, nameNode *sitter.Node, source []byte) Class {
	c := Class{
		Name:          lang.NodeText(nameNode, source),
		Start:         int(node.StartByte()),
		End:           int(node.EndByte()),
		NameEnd:       int(nameNode.EndByte()),
		HeritageEnd:   -1,
		ImplementsEnd: -1,
		BodyOpen:      -1,
		BodyClose:     -1,
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "type_parameters":
			c.NameEnd = int(child.EndByte())
		case "class_heritage":
			c.HeritageEnd = int(child.EndByte())
			c.ImplementsEnd, c.Implements = extractImplements(child, source)
		case "class_body":
			c.BodyOpen = int(child.StartByte())
			c.BodyClose = int(child.EndByte()) - 1
			c.Fields = fieldNames(child, source)
		case "decorator":
			c.Decorators = append(c.Decorators, buildDecorator(child, source))
		}
	}

	// @Component(...) export class X {} hangs the decorators on the export.
	if parent := node.Parent(); parent != nil && parent.Type() == "export_statement" {
		for i := 0; i < int(parent.ChildCount()); i++ {
			child := parent.Child(i)
			if child != nil && child.Type() == "decorator" {
				c.Decorators = append(c.Decorators, buildDecorator(child, source))
			}
		}
	}

	return c
}

func fieldNames(body *sitter.Node, source []byte) []string {
	var names []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "public_field_definition" {
			continue
		}
		if name := member.ChildByFieldName("name"); name != nil {
			names = append(names, lang.NodeText(name, source))
		}
	}
	return names
}

func extractImplements(heritage *sitter.Node, source []byte) (int, []string) {
	for i := 0; i < int(heritage.ChildCount()); i++ {
		child := heritage.Child(i)
		if child == nil || child.Type() != "implements_clause" {
			continue
		}
		var names []string
		for j := 0; j < int(child.NamedChildCount()); j++ {
			gc := child.NamedChild(j)
			switch gc.Type() {
			case "type_identifier", "generic_type", "nested_type_identifier":
				names = append(names, typeName(lang.NodeText(gc, source)))
			}
		}
		return int(child.EndByte()), names
	}
	return -1, nil
}

// typeName strips type arguments: "OnChanges<T>" -> "OnChanges".
func typeName(s string) string {
	if i := strings.IndexByte(s, '<'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func buildDecorator(node *sitter.Node, source []byte) Decorator {
	d := Decorator{ObjectOpen: -1, ObjectClose: -1, Arrays: map[string]ArrayLit{}}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier":
			d.Name = lang.NodeText(child, source)
		case "member_expression":
			d.Name = memberName(child, source)
		case "call_expression":
			fn := child.ChildByFieldName("function")
			if fn != nil {
				if fn.Type() == "member_expression" {
					d.Name = memberName(fn, source)
				} else {
					d.Name = lang.NodeText(fn, source)
				}
			}
			args := child.ChildByFieldName("arguments")
			if args == nil {
				continue
			}
			for j := 0; j < int(args.NamedChildCount()); j++ {
				obj := args.NamedChild(j)
				if obj.Type() != "object" {
					continue
				}
				d.ObjectOpen = int(obj.StartByte())
				d.ObjectClose = int(obj.EndByte()) - 1
				collectArrays(obj, source, d.Arrays)
				break
			}
		}
	}
	return d
}

func memberName(node *sitter.Node, source []byte) string {
	if prop := node.ChildByFieldName("property"); prop != nil {
		return lang.NodeText(prop, source)
	}
	return lang.NodeText(node, source)
}

func collectArrays(obj *sitter.Node, source []byte, into map[string]ArrayLit) {
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		value := pair.ChildByFieldName("value")
		if key == nil || value == nil || value.Type() != "array" {
			continue
		}
		name := strings.Trim(lang.NodeText(key, source), `"'`)
		arr := ArrayLit{
			Key:       name,
			Open:      int(value.StartByte()),
			Close:     int(value.EndByte()) - 1,
			LastStart: -1,
			LastEnd:   -1,
		}
		for j := 0; j < int(value.NamedChildCount()); j++ {
			el := value.NamedChild(j)
			if el.Type() == "comment" {
				continue
			}
			arr.Elements = append(arr.Elements, lang.CollapseWhitespace(lang.NodeText(el, source)))
			arr.LastStart = int(el.StartByte())
			arr.LastEnd = int(el.EndByte())
		}
		into[name] = arr
	}
}

func buildMethod(node *sitter.Node, source []byte) Method {
	m := Method{
		Start:       int(node.StartByte()),
		End:         int(node.EndByte()),
		ParamsOpen:  -1,
		ParamsClose: -1,
	}
	if name := node.ChildByFieldName("name"); name != nil {
		m.Name = lang.NodeText(name, source)
	}

	params := node.ChildByFieldName("parameters")
	body := node.ChildByFieldName("body")
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "formal_parameters":
			if params == nil {
				params = child
			}
		case "statement_block":
			if body == nil {
				body = child
			}
		}
	}

	if params != nil {
		m.ParamsOpen = int(params.StartByte())
		m.ParamsClose = int(params.EndByte()) - 1
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "required_parameter", "optional_parameter":
				m.Params = append(m.Params, buildParam(p, source))
			}
		}
	}
	if body != nil {
		m.HasBody = true
		m.Body = model.MethodBodyBounds{
			Start: int(body.StartByte()) + 1,
			End:   int(body.EndByte()) - 1,
		}
	}
	return m
}

func buildParam(node *sitter.Node, source []byte) Param {
	p := Param{Start: int(node.StartByte()), End: int(node.EndByte()), NameStart: -1}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "accessibility_modifier", "readonly":
			p.Property = true
		case "identifier":
			if p.Name == "" {
				p.Name = lang.NodeText(child, source)
				p.NameStart = int(child.StartByte())
			}
		case "type_annotation":
			t := strings.TrimPrefix(lang.NodeText(child, source), ":")
			p.Type = lang.CollapseWhitespace(t)
		}
	}
	return p
}

func buildImport(node, sourceNode *sitter.Node, source []byte) Import {
	imp := Import{
		Module:           stringContent(sourceNode, source),
		Start:            int(node.StartByte()),
		End:              int(node.EndByte()),
		NamedOpen:        -1,
		NamedClose:       -1,
		LastSpecifierEnd: -1,
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil && (child.Type() == "type" || child.Type() == "typeof") {
			imp.TypeOnly = true
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			gc := clause.NamedChild(j)
			switch gc.Type() {
			case "identifier":
				imp.Names = append(imp.Names, lang.NodeText(gc, source))
			case "namespace_import":
				for k := 0; k < int(gc.NamedChildCount()); k++ {
					if id := gc.NamedChild(k); id.Type() == "identifier" {
						imp.Names = append(imp.Names, lang.NodeText(id, source))
					}
				}
			case "named_imports":
				imp.Names = append(imp.Names, specifierNames(gc, "import_specifier", source)...)
				imp.NamedOpen = int(gc.StartByte())
				imp.NamedClose = int(gc.EndByte()) - 1
				for k := 0; k < int(gc.NamedChildCount()); k++ {
					if s := gc.NamedChild(k); s.Type() == "import_specifier" {
						imp.LastSpecifierEnd = int(s.EndByte())
					}
				}
			}
		}
	}
	return imp
}

func buildExport(node, sourceNode *sitter.Node, source []byte) Export {
	exp := Export{
		Module: stringContent(sourceNode, source),
		Start:  int(node.StartByte()),
		End:    int(node.EndByte()),
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if clause := node.NamedChild(i); clause.Type() == "export_clause" {
			exp.Names = specifierNames(clause, "export_specifier", source)
		}
	}
	return exp
}

// specifierNames returns the local name of each specifier (the alias when present).
func specifierNames(node *sitter.Node, kind string, source []byte) []string {
	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		spec := node.NamedChild(i)
		if spec.Type() != kind {
			continue
		}
		n := spec.ChildByFieldName("alias")
		if n == nil {
			n = spec.ChildByFieldName("name")
		}
		if n != nil {
			names = append(names, lang.NodeText(n, source))
		}
	}
	return names
}

func stringContent(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "string_fragment" {
			return lang.NodeText(child, source)
		}
	}
	return strings.Trim(lang.NodeText(node, source), "\"'`")
}

func firstIdentifierArg(call *sitter.Node, source []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return ""
	}
	first := args.NamedChild(0)
	if first.Type() != "identifier" {
		return ""
	}
	return lang.NodeText(first, source)
}

// findEnclosingClass walks method -> class_body -> class_declaration.
func findEnclosingClass(method *sitter.Node) *sitter.Node {
	parent := method.Parent()
	if parent == nil || parent.Type() != "class_body" {
		return nil
	}
	gp := parent.Parent()
	if gp == nil || gp.Type() != "class_declaration" {
		return nil
	}
	return gp
}
