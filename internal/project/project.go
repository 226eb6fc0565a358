// Package project derives facts about an Angular workspace needed before
// editing: build targets, the root module, its bootstrap component, the
// server module and the persisted toolkit state.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/Cipahi/ng-toolkit/internal/model"
	"github.com/Cipahi/ng-toolkit/internal/parse"
	"github.com/Cipahi/ng-toolkit/internal/tree"
)

const (
	// WorkspaceFile is the Angular CLI project configuration.
	WorkspaceFile = "angular.json"
	// ToolkitFile is the sidecar holding per-project toolkit state.
	ToolkitFile = "ng-toolkit.json"
)

// Workspace is the subset of angular.json the patcher reads.
type Workspace struct {
	DefaultProject string             `json:"defaultProject"`
	Projects       map[string]Project `json:"projects"`
}

// Project is one entry of the workspace "projects" map.
type Project struct {
	Root       string            `json:"root"`
	SourceRoot string            `json:"sourceRoot"`
	Architect  map[string]Target `json:"architect"`
}

// Target is an architect target such as "build" or "server".
type Target struct {
	Builder        string                   `json:"builder"`
	Options        TargetOptions            `json:"options"`
	Configurations map[string]Configuration `json:"configurations"`
}

// TargetOptions holds the entry files of a target.
type TargetOptions struct {
	Main    string `json:"main"`
	Browser string `json:"browser"`
	Server  string `json:"server"`
}

// Configuration is a named target configuration, e.g. "production".
// ServiceWorker accepts any JSON value; it is interpreted by truthiness.
type Configuration struct {
	ServiceWorker any `json:"serviceWorker"`
}

// ReadWorkspace decodes <dir>/angular.json.
func ReadWorkspace(t tree.Tree, dir string) (*Workspace, error) {
	p := path.Join(dir, WorkspaceFile)
	content, err := t.Read(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.Preconditionf("no %s in %s; run this inside an Angular CLI workspace", WorkspaceFile, displayDir(dir))
		}
		return nil, err
	}
	var ws Workspace
	if err := json.Unmarshal([]byte(content), &ws); err != nil {
		return nil, model.StructuralParse(content, "decoding %s: %v", p, err)
	}
	return &ws, nil
}

// Project returns the named project or a precondition error.
func (ws *Workspace) Project(name string) (Project, error) {
	p, ok := ws.Projects[name]
	if !ok {
		return Project{}, model.Preconditionf("project %q is not declared in %s", name, WorkspaceFile)
	}
	return p, nil
}

// DefaultProjectName returns defaultProject, or the only project when the
// workspace has exactly one.
func (ws *Workspace) DefaultProjectName() (string, bool) {
	if ws.DefaultProject != "" {
		return ws.DefaultProject, true
	}
	if len(ws.Projects) == 1 {
		for name := range ws.Projects {
			return name, true
		}
	}
	return "", false
}

// ServiceWorkerEnabled reports whether the production build configuration
// of project declares a service worker.
func ServiceWorkerEnabled(ws *Workspace, project string) (bool, error) {
	p, err := ws.Project(project)
	if err != nil {
		return false, err
	}
	cfg, ok := p.Architect["build"].Configurations["production"]
	if !ok {
		return false, nil
	}
	return truthy(cfg.ServiceWorker), nil
}

// GetAppEntryModule follows the build target's main file to the module
// passed to bootstrapModule(...).
func GetAppEntryModule(ctx context.Context, t tree.Tree, opts model.Options) (model.EntryModule, error) {
	ws, err := ReadWorkspace(t, opts.Directory)
	if err != nil {
		return model.EntryModule{}, err
	}
	p, err := ws.Project(opts.Project)
	if err != nil {
		return model.EntryModule{}, err
	}
	build := p.Architect["build"].Options
	main := build.Main
	if main == "" {
		main = build.Browser
	}
	if main == "" {
		return model.EntryModule{}, model.Preconditionf("project %q has no build main file in %s", opts.Project, WorkspaceFile)
	}

	mainPath := path.Join(opts.Directory, main)
	content, err := t.Read(mainPath)
	if err != nil {
		return model.EntryModule{}, err
	}
	f, err := parse.Source(ctx, []byte(content))
	if err != nil {
		return model.EntryModule{}, fmt.Errorf("%s: %w", mainPath, err)
	}
	if f.BootstrapModule == "" {
		return model.EntryModule{}, model.StructuralParse(content, "can't find bootstrapModule(...) call in %s", mainPath)
	}
	modulePath, ok := f.ResolveImport(mainPath, f.BootstrapModule)
	if !ok {
		return model.EntryModule{}, model.StructuralParse(content, "can't resolve import of %s in %s", f.BootstrapModule, mainPath)
	}
	return model.EntryModule{FilePath: modulePath, ClassName: f.BootstrapModule}, nil
}

// GetBootstrapComponent returns the component bootstrapped by the NgModule
// in modulePath. The slice always has one element.
func GetBootstrapComponent(ctx context.Context, t tree.Tree, modulePath string) ([]model.Component, error) {
	content, err := t.Read(modulePath)
	if err != nil {
		return nil, err
	}
	f, err := parse.Source(ctx, []byte(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", modulePath, err)
	}
	cls, ok := f.ClassWithDecorator("NgModule")
	if !ok {
		return nil, model.StructuralParse(content, "no @NgModule class in %s", modulePath)
	}
	dec, _ := cls.Decorator("NgModule")
	arr, ok := dec.Arrays["bootstrap"]
	if !ok || len(arr.Elements) == 0 {
		return nil, model.StructuralParse(content, "no bootstrap component declared in %s", modulePath)
	}

	name := arr.Elements[0]
	if _, local := f.Class(name); local {
		return []model.Component{{FilePath: modulePath, ClassName: name}}, nil
	}
	p, ok := f.ResolveImport(modulePath, name)
	if !ok {
		return nil, model.StructuralParse(content, "can't resolve import of %s in %s", name, modulePath)
	}
	return []model.Component{{FilePath: p, ClassName: name}}, nil
}

// GetMainServerFilePath returns the server entry file configured for the
// project, relative to opts.Directory. It reports false when the project has
// no server build.
func GetMainServerFilePath(t tree.Tree, opts model.Options) (string, bool, error) {
	ws, err := ReadWorkspace(t, opts.Directory)
	if err != nil {
		return "", false, err
	}
	p, err := ws.Project(opts.Project)
	if err != nil {
		return "", false, err
	}
	if server, ok := p.Architect["server"]; ok && server.Options.Main != "" {
		return server.Options.Main, true, nil
	}
	// application builder keeps the server entry on the build target
	if s := p.Architect["build"].Options.Server; s != "" {
		return s, true, nil
	}
	return "", false, nil
}

// FindServerModule derives the server NgModule file from the module
// re-exported by the server entry file. It reports false, after an
// informational log, when the project has no server build.
func FindServerModule(ctx context.Context, t tree.Tree, opts model.Options, log *slog.Logger) (string, bool, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	main, ok, err := GetMainServerFilePath(t, opts)
	if err != nil {
		return "", false, err
	}
	if !ok {
		log.InfoContext(ctx, "can't find server build in angular.json; use @ng-toolkit/universal for server-side rendering",
			"project", opts.Project)
		return "", false, nil
	}

	mainPath := path.Join(opts.Directory, main)
	content, err := t.Read(mainPath)
	if err != nil {
		return "", false, err
	}
	spec, ok := parse.FindServerModuleExport([]byte(content))
	if !ok {
		return "", false, model.StructuralParse(content, "can't find server app module in %s", mainPath)
	}
	return parse.ResolveRelative(mainPath, spec), true, nil
}

// GetToolkitInfo returns the toolkit state recorded for opts.Project, or an
// empty state when none was recorded.
func GetToolkitInfo(t tree.Tree, opts model.Options) (model.ToolkitState, error) {
	doc, err := readToolkitDoc(t, opts.Directory)
	if err != nil {
		return nil, err
	}
	state := model.ToolkitState{}
	projects, _ := doc["projects"].(map[string]any)
	if p, ok := projects[opts.Project].(map[string]any); ok {
		for k, v := range p {
			state[k] = v
		}
	}
	return state, nil
}

// UpdateToolkitInfo merges state into the record of opts.Project and writes
// the sidecar back. Other projects and top-level keys are kept.
func UpdateToolkitInfo(t tree.Tree, opts model.Options, state model.ToolkitState) error {
	doc, err := readToolkitDoc(t, opts.Directory)
	if err != nil {
		return err
	}
	projects, ok := doc["projects"].(map[string]any)
	if !ok {
		projects = map[string]any{}
		doc["projects"] = projects
	}
	record, ok := projects[opts.Project].(map[string]any)
	if !ok {
		record = map[string]any{}
		projects[opts.Project] = record
	}
	for k, v := range state {
		record[k] = v
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", ToolkitFile, err)
	}
	return t.Overwrite(path.Join(opts.Directory, ToolkitFile), string(out)+"\n")
}

func readToolkitDoc(t tree.Tree, dir string) (map[string]any, error) {
	p := path.Join(dir, ToolkitFile)
	if !t.Exists(p) {
		return map[string]any{}, nil
	}
	content, err := t.Read(p)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, model.StructuralParse(content, "decoding %s: %v", p, err)
	}
	return doc, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	}
	return true
}

func displayDir(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
