// Package edit implements the idempotent source mutations applied to an
// Angular project. Every primitive reads one file, parses it, splices text
// at landmark offsets and rewrites the whole file.
package edit

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Cipahi/ng-toolkit/internal/model"
	"github.com/Cipahi/ng-toolkit/internal/parse"
	"github.com/Cipahi/ng-toolkit/internal/tree"
)

const indent = "  "

// AddImport makes symbol importable from module. It extends an existing
// named import of module, or prepends `import { symbol } from 'module';`.
func AddImport(ctx context.Context, t tree.Tree, path, symbol, module string) error {
	src, f, err := load(ctx, t, path)
	if err != nil {
		return err
	}
	if f.Imported(symbol, module) {
		return nil
	}
	if imp, ok := f.NamedImport(module); ok {
		s := model.Splice{Start: imp.LastSpecifierEnd, End: imp.LastSpecifierEnd, Text: ", " + symbol}
		if imp.LastSpecifierEnd < 0 {
			s = model.Splice{Start: imp.NamedOpen + 1, End: imp.NamedClose, Text: " " + symbol + " "}
		}
		return t.Overwrite(path, Apply(src, s))
	}
	line := fmt.Sprintf("import { %s } from '%s';\n", symbol, module)
	return t.Overwrite(path, line+src)
}

// AddToNgModule appends symbol to the named array of the file's @NgModule
// decorator, creating the array when the decorator lacks it.
func AddToNgModule(ctx context.Context, t tree.Tree, path, array, symbol string) error {
	src, f, err := load(ctx, t, path)
	if err != nil {
		return err
	}
	cls, ok := f.ClassWithDecorator("NgModule")
	if !ok {
		return model.StructuralParse(src, "no @NgModule class in %s", path)
	}
	dec, _ := cls.Decorator("NgModule")

	arr, ok := dec.Arrays[array]
	switch {
	case ok && arr.Contains(symbol):
		return nil
	case ok && arr.LastEnd < 0:
		return t.Overwrite(path, Apply(src, model.Splice{Start: arr.Open + 1, End: arr.Close, Text: symbol}))
	case ok:
		sep := ", "
		if strings.Contains(src[arr.Open:arr.Close], "\n") {
			sep = ",\n" + lineIndent(src, arr.LastStart)
		}
		return t.Overwrite(path, Apply(src, model.Splice{Start: arr.LastEnd, End: arr.LastEnd, Text: sep + symbol}))
	}

	if dec.ObjectOpen < 0 {
		return model.StructuralParse(src, "@NgModule in %s has no metadata object", path)
	}
	entry := fmt.Sprintf("\n%s%s: [%s]", indent, array, symbol)
	if strings.TrimSpace(src[dec.ObjectOpen+1:dec.ObjectClose]) == "" {
		entry += "\n"
	} else {
		entry += ","
	}
	return t.Overwrite(path, Apply(src, model.Splice{Start: dec.ObjectOpen + 1, End: dec.ObjectOpen + 1, Text: entry}))
}

// AddDependencyInjection adds a `private <name>: <typeName>` constructor
// parameter to class (see targetClass), importing typeName from module.
// It returns the name the parameter is reachable by (this.<name>). An
// existing parameter property of the same type is reused, a plain parameter
// of that type is promoted with `private`, and a name already used by a
// member or parameter gets a numeric suffix.
func AddDependencyInjection(ctx context.Context, t tree.Tree, path, class, paramName, typeName, module string) (string, error) {
	src, f, err := load(ctx, t, path)
	if err != nil {
		return "", err
	}
	cls, err := targetClass(src, f, path, class)
	if err != nil {
		return "", err
	}

	ctor, hasCtor := cls.Constructor()
	members := make(map[string]struct{})
	for _, m := range cls.Methods {
		members[m.Name] = struct{}{}
	}
	for _, name := range cls.Fields {
		members[name] = struct{}{}
	}
	var plain *parse.Param
	for i, p := range ctor.Params {
		if p.Type != typeName {
			continue
		}
		if p.Property {
			return p.Name, AddImport(ctx, t, path, typeName, module)
		}
		if _, clash := members[p.Name]; !clash && plain == nil && p.NameStart >= 0 {
			plain = &ctor.Params[i]
		}
	}
	if plain != nil {
		s := model.Splice{Start: plain.NameStart, End: plain.NameStart, Text: "private "}
		if err := t.Overwrite(path, Apply(src, s)); err != nil {
			return "", err
		}
		return plain.Name, AddImport(ctx, t, path, typeName, module)
	}

	taken := members
	for _, p := range ctor.Params {
		taken[p.Name] = struct{}{}
	}

	name := paramName
	for i := 1; ; i++ {
		if _, clash := taken[name]; !clash {
			break
		}
		name = fmt.Sprintf("%s%d", paramName, i)
	}
	decl := fmt.Sprintf("private %s: %s", name, typeName)

	var s model.Splice
	switch {
	case !hasCtor:
		s = model.Splice{
			Start: cls.BodyOpen + 1,
			End:   cls.BodyOpen + 1,
			Text:  fmt.Sprintf("\n%sconstructor(%s) {}\n", indent, decl),
		}
	case len(ctor.Params) == 0:
		s = model.Splice{Start: ctor.ParamsOpen + 1, End: ctor.ParamsClose, Text: decl}
	default:
		last := ctor.Params[len(ctor.Params)-1]
		s = model.Splice{Start: last.End, End: last.End, Text: ", " + decl}
	}
	if err := t.Overwrite(path, Apply(src, s)); err != nil {
		return "", err
	}
	return name, AddImport(ctx, t, path, typeName, module)
}

// ImplementInterface adds iface to the implements clause of class and
// imports it from module.
func ImplementInterface(ctx context.Context, t tree.Tree, path, class, iface, module string) error {
	src, f, err := load(ctx, t, path)
	if err != nil {
		return err
	}
	cls, err := targetClass(src, f, path, class)
	if err != nil {
		return err
	}

	if !cls.ImplementsInterface(iface) {
		var s model.Splice
		switch {
		case cls.ImplementsEnd >= 0:
			s = model.Splice{Start: cls.ImplementsEnd, End: cls.ImplementsEnd, Text: ", " + iface}
		case cls.HeritageEnd >= 0:
			s = model.Splice{Start: cls.HeritageEnd, End: cls.HeritageEnd, Text: " implements " + iface}
		default:
			s = model.Splice{Start: cls.NameEnd, End: cls.NameEnd, Text: " implements " + iface}
		}
		if err := t.Overwrite(path, Apply(src, s)); err != nil {
			return err
		}
	}
	return AddImport(ctx, t, path, iface, module)
}

// AddMethod appends method verbatim to the end of the body of class unless
// the body already contains it.
func AddMethod(ctx context.Context, t tree.Tree, path, class, method string) error {
	src, f, err := load(ctx, t, path)
	if err != nil {
		return err
	}
	cls, err := targetClass(src, f, path, class)
	if err != nil {
		return err
	}
	if strings.Contains(src[cls.BodyOpen+1:cls.BodyClose], method) {
		return nil
	}

	text := indent + method + "\n"
	if !strings.HasSuffix(src[:cls.BodyClose], "\n") {
		text = "\n" + text
	}
	return t.Overwrite(path, Apply(src, model.Splice{Start: cls.BodyClose, End: cls.BodyClose, Text: text}))
}

// SpliceBody inserts text at the start of the method body located by
// bounds, keeping the original statements after it. A body that already
// starts with text is left alone.
func SpliceBody(_ context.Context, t tree.Tree, path string, bounds model.MethodBodyBounds, text string) error {
	src, err := t.Read(path)
	if err != nil {
		return err
	}
	if bounds.Start < 0 || bounds.Start > bounds.End || bounds.End > len(src) {
		return fmt.Errorf("%s: method body bounds [%d,%d) outside file of %d bytes", path, bounds.Start, bounds.End, len(src))
	}
	body := src[bounds.Start:bounds.End]
	if strings.HasPrefix(body, text) {
		return nil
	}
	return t.Overwrite(path, Apply(src, model.Splice{Start: bounds.Start, End: bounds.End, Text: text + body}))
}

// Request applies one EditRequest. For FieldInject it returns the accessor
// name of the injected parameter.
func Request(ctx context.Context, t tree.Tree, req model.EditRequest) (string, error) {
	switch req.Kind {
	case model.ImportAdd:
		return "", AddImport(ctx, t, req.Path, req.Symbol, req.Module)
	case model.ModuleRegister:
		return "", AddToNgModule(ctx, t, req.Path, req.Array, req.Symbol)
	case model.FieldInject:
		return AddDependencyInjection(ctx, t, req.Path, req.Class, req.Param, req.Symbol, req.Module)
	case model.InterfaceImplement:
		return "", ImplementInterface(ctx, t, req.Path, req.Class, req.Symbol, req.Module)
	case model.MethodAdd:
		return "", AddMethod(ctx, t, req.Path, req.Class, req.Text)
	case model.BodySplice:
		return "", SpliceBody(ctx, t, req.Path, req.Bounds, req.Text)
	}
	return "", fmt.Errorf("unknown edit kind %q", req.Kind)
}

// Apply returns src with every splice applied. Splices must not overlap;
// they are applied back to front so earlier offsets stay valid.
func Apply(src string, splices ...model.Splice) string {
	sorted := append([]model.Splice(nil), splices...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })
	for _, s := range sorted {
		src = src[:s.Start] + s.Text + src[s.End:]
	}
	return src
}

func load(ctx context.Context, t tree.Tree, path string) (string, *parse.File, error) {
	src, err := t.Read(path)
	if err != nil {
		return "", nil, err
	}
	f, err := parse.Source(ctx, []byte(src))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, f, nil
}

// targetClass returns the class called name. Without a name it picks the
// @Component class, falling back to the first class.
func targetClass(src string, f *parse.File, path, name string) (*parse.Class, error) {
	if name != "" {
		if c, ok := f.Class(name); ok {
			return c, nil
		}
		return nil, model.StructuralParse(src, "no class %s in %s", name, path)
	}
	if c, ok := f.ClassWithDecorator("Component"); ok {
		return c, nil
	}
	if c, ok := f.FirstClass(); ok {
		return c, nil
	}
	return nil, model.StructuralParse(src, "no class in %s", path)
}

// lineIndent returns the leading whitespace of the line containing offset.
func lineIndent(src string, offset int) string {
	start := strings.LastIndexByte(src[:offset], '\n') + 1
	end := start
	for end < offset && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return src[start:end]
}
