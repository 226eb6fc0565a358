// Package pwa adds service worker update handling to an Angular project.
//
// Rule.Apply runs one pass over a project tree: it checks that the project
// was prepared with `ng add @angular/pwa`, registers the mock PWA module in
// the server module, wires SwUpdate into the bootstrap component and
// records the capability in ng-toolkit.json. Edits that landed before a
// failure are left in the tree.
package pwa

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Cipahi/ng-toolkit/internal/edit"
	"github.com/Cipahi/ng-toolkit/internal/model"
	"github.com/Cipahi/ng-toolkit/internal/parse"
	"github.com/Cipahi/ng-toolkit/internal/project"
	"github.com/Cipahi/ng-toolkit/internal/telemetry"
	"github.com/Cipahi/ng-toolkit/internal/tree"
)

// Capability is the toolkit state key recorded by this rule.
const Capability = "pwa"

const (
	mockModule       = "NgtPwaMockModule"
	mockModuleSource = "@ng-toolkit/pwa"
	swUpdateType     = "SwUpdate"
	swUpdateSource   = "@angular/service-worker"
	onInit           = "OnInit"
	coreSource       = "@angular/core"
	ngOnInit         = "ngOnInit"
	emptyNgOnInit    = "public ngOnInit():void {}"
)

// PrerequisiteMessage is the precondition error shown when the project has
// no service worker build configuration.
const PrerequisiteMessage = "Run 'ng add @angular/pwa' before applying this schematics."

// updateCheck is spliced at the start of ngOnInit; %[1]s is the SwUpdate
// accessor.
const updateCheck = `
    if (this.%[1]s.isEnabled) {
      this.%[1]s.available.subscribe((evt) => {
        console.log('service worker updated');
      });

      this.%[1]s.checkForUpdate().then(() => {
        // noop
      }).catch((err) => {
        console.error('error when checking for update', err);
      });
    }`

// Rule applies PWA support. The zero value is usable: logs are discarded
// and failures are not reported.
type Rule struct {
	Log      *slog.Logger
	Reporter telemetry.Reporter
}

// Result is what the host needs after a successful run.
type Result struct {
	// Actions run after the tree is committed, in order.
	Actions []model.Action
	// ServerModule is the server NgModule that was edited, or "".
	ServerModule string
	// Component is the bootstrap component that was edited; zero when the
	// capability was already applied.
	Component    model.Component
	InvocationID string
}

// Apply runs the rule against t. Unless opts.DisableTelemetry is set, a
// returned error is also sent to the rule's reporter.
func (r *Rule) Apply(ctx context.Context, t tree.Tree, opts model.Options) (res Result, err error) {
	id := telemetry.NewInvocationID()
	log := r.logger().With("invocation", id, "project", opts.Project)

	if !opts.DisableTelemetry {
		defer func() {
			if err != nil {
				r.report(ctx, log, err, opts, id)
			}
		}()
	}

	res, err = r.apply(ctx, log, t, opts)
	res.InvocationID = id
	return res, err
}

func (r *Rule) apply(ctx context.Context, log *slog.Logger, t tree.Tree, opts model.Options) (Result, error) {
	var res Result
	if opts.Project == "" {
		return res, model.Preconditionf("no target project given")
	}

	ws, err := project.ReadWorkspace(t, opts.Directory)
	if err != nil {
		return res, err
	}
	enabled, err := project.ServiceWorkerEnabled(ws, opts.Project)
	if err != nil {
		return res, err
	}
	if !enabled {
		return res, model.Preconditionf(PrerequisiteMessage)
	}

	serverModule := opts.ServerModule
	if serverModule == "" {
		found, ok, err := project.FindServerModule(ctx, t, opts, log)
		if err != nil {
			return res, err
		}
		if ok {
			serverModule = found
		}
	}
	if serverModule != "" {
		log.DebugContext(ctx, "registering mock module", "server_module", serverModule)
		if err := registerMockModule(ctx, t, serverModule); err != nil {
			return res, err
		}
		res.ServerModule = serverModule
	}

	state, err := project.GetToolkitInfo(t, opts)
	if err != nil {
		return res, err
	}
	if state.Has(Capability) {
		log.InfoContext(ctx, "pwa already applied; leaving bootstrap component untouched")
	} else {
		comp, err := addUpdateCheck(ctx, log, t, opts)
		if err != nil {
			return res, err
		}
		res.Component = comp
	}

	state[Capability] = opts
	if err := project.UpdateToolkitInfo(t, opts, state); err != nil {
		return res, err
	}

	if !opts.SkipInstall {
		res.Actions = append(res.Actions, model.Action{Kind: model.Install, Directory: opts.Directory})
	}
	return res, nil
}

func registerMockModule(ctx context.Context, t tree.Tree, path string) error {
	reqs := []model.EditRequest{
		{Path: path, Kind: model.ImportAdd, Symbol: mockModule, Module: mockModuleSource},
		{Path: path, Kind: model.ModuleRegister, Array: "imports", Symbol: mockModule},
	}
	for _, req := range reqs {
		if _, err := edit.Request(ctx, t, req); err != nil {
			return err
		}
	}
	return nil
}

func addUpdateCheck(ctx context.Context, log *slog.Logger, t tree.Tree, opts model.Options) (model.Component, error) {
	entry, err := project.GetAppEntryModule(ctx, t, opts)
	if err != nil {
		return model.Component{}, err
	}
	comps, err := project.GetBootstrapComponent(ctx, t, entry.FilePath)
	if err != nil {
		return model.Component{}, err
	}
	comp := comps[0]
	log.DebugContext(ctx, "editing bootstrap component", "file", comp.FilePath, "class", comp.ClassName)

	accessor, err := edit.AddDependencyInjection(ctx, t, comp.FilePath, comp.ClassName, "swUpdate", swUpdateType, swUpdateSource)
	if err != nil {
		return model.Component{}, err
	}
	if err := edit.ImplementInterface(ctx, t, comp.FilePath, comp.ClassName, onInit, coreSource); err != nil {
		return model.Component{}, err
	}

	bounds, ok, err := methodBody(t, comp)
	if err != nil {
		return model.Component{}, err
	}
	if !ok {
		if err := edit.AddMethod(ctx, t, comp.FilePath, comp.ClassName, emptyNgOnInit); err != nil {
			return model.Component{}, err
		}
		if bounds, ok, err = methodBody(t, comp); err != nil {
			return model.Component{}, err
		}
		if !ok {
			content, _ := t.Read(comp.FilePath)
			return model.Component{}, model.StructuralParse(content, "can't locate ngOnInit in %s", comp.FilePath)
		}
	}

	if err := edit.SpliceBody(ctx, t, comp.FilePath, bounds, fmt.Sprintf(updateCheck, accessor)); err != nil {
		return model.Component{}, err
	}
	return comp, nil
}

func methodBody(t tree.Tree, comp model.Component) (model.MethodBodyBounds, bool, error) {
	content, err := t.Read(comp.FilePath)
	if err != nil {
		return model.MethodBodyBounds{}, false, err
	}
	bounds, ok := parse.FindClassMethodBody([]byte(content), comp.ClassName, ngOnInit)
	return bounds, ok, nil
}

// report sends err to the reporter. Reporter failures and panics are logged
// and dropped.
func (r *Rule) report(ctx context.Context, log *slog.Logger, err error, opts model.Options, id string) {
	if r.Reporter == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.DebugContext(ctx, "telemetry panicked", "panic", p)
		}
	}()
	md := telemetry.Metadata{
		"subsystem": {
			"package":    Capability,
			"options":    opts,
			"invocation": id,
		},
	}
	if nerr := r.Reporter.Notify(ctx, err, md); nerr != nil {
		log.DebugContext(ctx, "telemetry failed", "error", nerr)
	}
}

func (r *Rule) logger() *slog.Logger {
	if r.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Log
}
