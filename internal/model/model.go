// Package model defines core data structures for the ng-toolkit patcher.
package model

// EditKind names one of the fixed source mutations the patcher can apply.
type EditKind string

const (
	ImportAdd          EditKind = "import-add"
	ModuleRegister     EditKind = "module-register"
	FieldInject        EditKind = "field-inject"
	InterfaceImplement EditKind = "interface-implement"
	MethodAdd          EditKind = "method-add"
	BodySplice         EditKind = "body-splice"
)

// MethodBodyBounds locates the inside of a method body: Start is the first
// byte after the opening brace, End is the offset of the closing brace.
// An empty body yields Start == End.
type MethodBodyBounds struct {
	Start int
	End   int
}

// Splice replaces the byte range [Start, End) of a file with Text.
type Splice struct {
	Start int
	End   int
	Text  string
}

// EditRequest describes one mutation of one file.
type EditRequest struct {
	Path   string
	Kind   EditKind
	Class  string // target class; "" selects the @Component class
	Symbol string // imported, registered, injected-type or interface name
	Module string // module specifier the symbol is imported from
	Array  string // NgModule array name for ModuleRegister
	Param  string // preferred parameter name for FieldInject
	Text   string // method source for MethodAdd, inserted text for BodySplice
	Bounds MethodBodyBounds
}

// EntryModule is the root NgModule of an application.
type EntryModule struct {
	FilePath  string
	ClassName string
}

// Component describes a component class and the file declaring it.
type Component struct {
	FilePath  string
	ClassName string
}

// Options is the input of a patcher run. Project is the only name for the
// target project; CLI aliases are resolved before an Options value exists.
type Options struct {
	Directory        string `json:"directory"`
	Project          string `json:"project"`
	ServerModule     string `json:"serverModule,omitempty"`
	SkipInstall      bool   `json:"skipInstall"`
	DisableTelemetry bool   `json:"disableTelemetry"`
}

// ToolkitState records which capabilities were applied to one project,
// keyed by capability name ("pwa", "universal", ...).
type ToolkitState map[string]any

// Has reports whether capability was recorded as applied. A null or false
// record counts as not applied.
func (s ToolkitState) Has(capability string) bool {
	switch v := s[capability].(type) {
	case nil:
		return false
	case bool:
		return v
	}
	return true
}

// ActionKind indicates the kind of a post-commit action.
type ActionKind string

const Install ActionKind = "install"

// Action is work the host runs after the mutated tree is committed.
type Action struct {
	Kind      ActionKind
	Directory string
}

// ChangeOp indicates how a file in the tree was changed.
type ChangeOp string

const (
	Create ChangeOp = "create"
	Modify ChangeOp = "modify"
)

// Change is one file touched during a run.
type Change struct {
	Path string
	Op   ChangeOp
}

// Report summarizes a run, ready for serialization.
type Report struct {
	Project      string
	ServerModule string
	Component    string
	Changes      []Change
	Actions      []Action
}
