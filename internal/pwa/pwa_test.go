package pwa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cipahi/ng-toolkit/internal/model"
	"github.com/Cipahi/ng-toolkit/internal/project"
	"github.com/Cipahi/ng-toolkit/internal/telemetry"
	"github.com/Cipahi/ng-toolkit/internal/testutil"
	"github.com/Cipahi/ng-toolkit/internal/tree"
)

const angularJSON = `{
  "projects": {
    "app": {
      "architect": {
        "build": {
          "options": { "main": "src/main.ts" },
          "configurations": { "production": { "serviceWorker": true } }
        },
        "server": { "options": { "main": "src/main.server.ts" } }
      }
    }
  }
}`

const angularJSONNoServiceWorker = `{
  "projects": {
    "app": {
      "architect": {
        "build": {
          "options": { "main": "src/main.ts" },
          "configurations": { "production": { "optimization": true } }
        }
      }
    }
  }
}`

const angularJSONNoServer = `{
  "projects": {
    "app": {
      "architect": {
        "build": {
          "options": { "main": "src/main.ts" },
          "configurations": { "production": { "serviceWorker": true } }
        }
      }
    }
  }
}`

const mainTS = `import { platformBrowserDynamic } from '@angular/platform-browser-dynamic';
import { AppModule } from './app/app.module';

platformBrowserDynamic().bootstrapModule(AppModule)
  .catch(err => console.log(err));
`

const mainServerTS = `import { enableProdMode } from '@angular/core';
export { AppServerModule } from './app/app.server.module';
`

const appModuleTS = `import { BrowserModule } from '@angular/platform-browser';
import { NgModule } from '@angular/core';
import { AppComponent } from './app.component';

@NgModule({
  declarations: [
    AppComponent
  ],
  imports: [
    BrowserModule.withServerTransition({ appId: 'app' }),
  ],
  providers: [],
  bootstrap: [AppComponent]
})
export class AppModule { }
`

const appServerModuleTS = `import { NgModule } from '@angular/core';
import { ServerModule } from '@angular/platform-server';
import { AppModule } from './app.module';
import { AppComponent } from './app.component';

@NgModule({
  imports: [
    AppModule,
    ServerModule,
  ],
  bootstrap: [AppComponent],
})
export class AppServerModule {}
`

const appComponentTS = `import { Component } from '@angular/core';

@Component({
  selector: 'app-root',
  templateUrl: './app.component.html',
})
export class AppComponent {
  title = 'app';
}
`

const (
	componentPath    = "src/app/app.component.ts"
	serverModulePath = "src/app/app.server.module.ts"
)

func fixture(t *testing.T, overrides map[string]string) *tree.Mem {
	t.Helper()
	files := map[string]string{
		"angular.json":          angularJSON,
		"src/main.ts":           mainTS,
		"src/main.server.ts":    mainServerTS,
		"src/app/app.module.ts": appModuleTS,
		serverModulePath:        appServerModuleTS,
		componentPath:           appComponentTS,
	}
	for k, v := range overrides {
		files[k] = v
	}
	return testutil.NewTree(t, files)
}

func read(t *testing.T, m *tree.Mem, p string) string {
	t.Helper()
	s, err := m.Read(p)
	require.NoError(t, err)
	return s
}

type recorder struct {
	errs []error
	md   []telemetry.Metadata
	fail error
	boom bool
}

func (r *recorder) Notify(_ context.Context, err error, md telemetry.Metadata) error {
	if r.boom {
		panic("sink exploded")
	}
	r.errs = append(r.errs, err)
	r.md = append(r.md, md)
	return r.fail
}

func TestApply(t *testing.T) {
	t.Parallel()
	m := fixture(t, nil)
	rule := &Rule{Log: testutil.NewTestLogger(t)}

	res, err := rule.Apply(context.Background(), m, model.Options{Project: "app"})
	require.NoError(t, err)

	assert.Equal(t, serverModulePath, res.ServerModule)
	assert.Equal(t, model.Component{FilePath: componentPath, ClassName: "AppComponent"}, res.Component)
	assert.Equal(t, []model.Action{{Kind: model.Install, Directory: ""}}, res.Actions)
	assert.NotEmpty(t, res.InvocationID)

	server := read(t, m, serverModulePath)
	assert.True(t, strings.HasPrefix(server, "import { NgtPwaMockModule } from '@ng-toolkit/pwa';\n"))
	assert.Contains(t, server, "    ServerModule,\n    NgtPwaMockModule,\n  ],")

	comp := read(t, m, componentPath)
	assert.Contains(t, comp, "import { SwUpdate } from '@angular/service-worker';\n")
	assert.Contains(t, comp, "import { Component, OnInit } from '@angular/core';\n")
	assert.Contains(t, comp, "export class AppComponent implements OnInit {")
	assert.Contains(t, comp, "constructor(private swUpdate: SwUpdate) {}")
	assert.Contains(t, comp, "public ngOnInit():void {\n    if (this.swUpdate.isEnabled) {")
	assert.Contains(t, comp, "this.swUpdate.checkForUpdate()")
	assert.Contains(t, comp, "title = 'app';")

	state, err := project.GetToolkitInfo(m, model.Options{Project: "app"})
	require.NoError(t, err)
	assert.True(t, state.Has(Capability))

	changed := make([]string, 0)
	for _, c := range m.Changes() {
		changed = append(changed, c.Path)
	}
	assert.ElementsMatch(t, []string{componentPath, serverModulePath, "ng-toolkit.json"}, changed)
}

func TestApplyWithoutServiceWorker(t *testing.T) {
	t.Parallel()
	m := fixture(t, map[string]string{"angular.json": angularJSONNoServiceWorker})
	rule := &Rule{Log: testutil.NewTestLogger(t)}

	_, err := rule.Apply(context.Background(), m, model.Options{Project: "app", DisableTelemetry: true})
	require.ErrorIs(t, err, model.ErrPrecondition)
	assert.Contains(t, err.Error(), "ng add @angular/pwa")
	assert.Empty(t, m.Changes())
}

func TestApplyUnknownProject(t *testing.T) {
	t.Parallel()
	m := fixture(t, nil)

	_, err := (&Rule{}).Apply(context.Background(), m, model.Options{Project: "nope"})
	require.ErrorIs(t, err, model.ErrPrecondition)
	assert.Empty(t, m.Changes())
}

func TestApplyTwiceDoesNotDuplicateBoilerplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := fixture(t, nil)
	rule := &Rule{Log: testutil.NewTestLogger(t)}
	opts := model.Options{Project: "app", SkipInstall: true}

	_, err := rule.Apply(ctx, m, opts)
	require.NoError(t, err)
	first := read(t, m, componentPath)

	res, err := rule.Apply(ctx, m, opts)
	require.NoError(t, err)
	assert.Equal(t, model.Component{}, res.Component)
	assert.Equal(t, serverModulePath, res.ServerModule, "server module step is not state-gated")

	comp := read(t, m, componentPath)
	assert.Equal(t, first, comp)
	assert.Equal(t, 1, strings.Count(comp, "checkForUpdate"))
	assert.Equal(t, 2, strings.Count(read(t, m, serverModulePath), mockModule), "one import and one registration")
}

func TestApplyExplicitServerModule(t *testing.T) {
	t.Parallel()
	const custom = "src/custom/server.module.ts"
	m := fixture(t, map[string]string{
		// derivation would fail on this entry file
		"src/main.server.ts": "export const nothing = 1;\n",
		custom:               "import { NgModule } from '@angular/core';\n\n@NgModule({\n  imports: []\n})\nexport class CustomServerModule {}\n",
	})
	rule := &Rule{Log: testutil.NewTestLogger(t)}

	res, err := rule.Apply(context.Background(), m, model.Options{Project: "app", ServerModule: custom})
	require.NoError(t, err)
	assert.Equal(t, custom, res.ServerModule)
	assert.Contains(t, read(t, m, custom), "imports: [NgtPwaMockModule]")
	assert.Equal(t, appServerModuleTS, read(t, m, serverModulePath))
}

func TestApplyWithoutServerBuild(t *testing.T) {
	t.Parallel()
	m := fixture(t, map[string]string{"angular.json": angularJSONNoServer})
	rule := &Rule{Log: testutil.NewTestLogger(t)}

	res, err := rule.Apply(context.Background(), m, model.Options{Project: "app"})
	require.NoError(t, err)
	assert.Empty(t, res.ServerModule)
	assert.Equal(t, appServerModuleTS, read(t, m, serverModulePath))
	assert.Contains(t, read(t, m, componentPath), "this.swUpdate.checkForUpdate()")
}

func TestApplyServerEntryWithoutReExport(t *testing.T) {
	t.Parallel()
	m := fixture(t, map[string]string{"src/main.server.ts": "export const nothing = 1;\n"})

	_, err := (&Rule{}).Apply(context.Background(), m, model.Options{Project: "app", DisableTelemetry: true})
	require.ErrorIs(t, err, model.ErrStructuralParse)

	var perr *model.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "export const nothing = 1;\n", perr.FileContent)
}

func TestApplyExistingNgOnInitKeepsBody(t *testing.T) {
	t.Parallel()
	comp := `import { Component, OnInit } from '@angular/core';

@Component({ selector: 'app-root' })
export class AppComponent implements OnInit {
  constructor() {}

  ngOnInit() {
    this.load();
  }
}
`
	m := fixture(t, map[string]string{componentPath: comp})

	_, err := (&Rule{}).Apply(context.Background(), m, model.Options{Project: "app"})
	require.NoError(t, err)

	got := read(t, m, componentPath)
	assert.Contains(t, got, "export class AppComponent implements OnInit {")
	assert.NotContains(t, got, "public ngOnInit():void {}")
	assert.Contains(t, got, "constructor(private swUpdate: SwUpdate) {}")

	check := strings.Index(got, "this.swUpdate.isEnabled")
	load := strings.Index(got, "this.load();")
	require.Positive(t, check)
	assert.Less(t, check, load, "update check runs before the original statements")
}

func TestApplyEditsBootstrapClassOnly(t *testing.T) {
	t.Parallel()
	comp := `import { Component, OnInit } from '@angular/core';

class Helper implements OnInit {
  ngOnInit() { console.log('helper'); }
}

@Component({ selector: 'app-root' })
export class AppComponent {
  title = 'app';
}
`
	m := fixture(t, map[string]string{componentPath: comp})

	res, err := (&Rule{}).Apply(context.Background(), m, model.Options{Project: "app", SkipInstall: true})
	require.NoError(t, err)
	assert.Equal(t, "AppComponent", res.Component.ClassName)

	got := read(t, m, componentPath)
	assert.Contains(t, got, "class Helper implements OnInit {\n  ngOnInit() { console.log('helper'); }\n}")
	assert.Contains(t, got, "export class AppComponent implements OnInit {\n  constructor(private swUpdate: SwUpdate) {}\n")
	assert.Contains(t, got, "public ngOnInit():void {\n    if (this.swUpdate.isEnabled) {")
	assert.Equal(t, 1, strings.Count(got, "checkForUpdate"))
	assert.Less(t, strings.Index(got, "class Helper"), strings.Index(got, "this.swUpdate"))
	assert.Less(t, strings.Index(got, "export class AppComponent"), strings.Index(got, "this.swUpdate"))
}

func TestApplyPlainConstructorParameter(t *testing.T) {
	t.Parallel()
	comp := `import { Component } from '@angular/core';
import { SwUpdate } from '@angular/service-worker';

@Component({ selector: 'app-root' })
export class AppComponent {
  swUpdate = false;

  constructor(sw: SwUpdate) {}
}
`
	m := fixture(t, map[string]string{componentPath: comp})

	_, err := (&Rule{}).Apply(context.Background(), m, model.Options{Project: "app", SkipInstall: true})
	require.NoError(t, err)

	got := read(t, m, componentPath)
	assert.Contains(t, got, "constructor(private sw: SwUpdate) {}")
	assert.Contains(t, got, "if (this.sw.isEnabled) {")
	assert.Contains(t, got, "swUpdate = false;")
}

func TestApplySkipInstall(t *testing.T) {
	t.Parallel()
	m := fixture(t, nil)

	res, err := (&Rule{}).Apply(context.Background(), m, model.Options{Project: "app", SkipInstall: true})
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
}

func TestApplyDirectory(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"web/angular.json":                 angularJSON,
		"web/src/main.ts":                  mainTS,
		"web/src/main.server.ts":           mainServerTS,
		"web/src/app/app.module.ts":        appModuleTS,
		"web/src/app/app.server.module.ts": appServerModuleTS,
		"web/src/app/app.component.ts":     appComponentTS,
	}
	m := testutil.NewTree(t, files)

	res, err := (&Rule{}).Apply(context.Background(), m, model.Options{Directory: "web", Project: "app"})
	require.NoError(t, err)
	assert.Equal(t, "web/src/app/app.server.module.ts", res.ServerModule)
	assert.Equal(t, "web/src/app/app.component.ts", res.Component.FilePath)
	assert.Equal(t, []model.Action{{Kind: model.Install, Directory: "web"}}, res.Actions)
	assert.True(t, m.Exists("web/ng-toolkit.json"))
}

func TestApplyReportsFailures(t *testing.T) {
	t.Parallel()
	m := fixture(t, map[string]string{"angular.json": angularJSONNoServiceWorker})
	rec := &recorder{fail: errors.New("sink down")}
	rule := &Rule{Log: testutil.NewTestLogger(t), Reporter: rec}
	opts := model.Options{Project: "app"}

	res, err := rule.Apply(context.Background(), m, opts)
	require.ErrorIs(t, err, model.ErrPrecondition)

	require.Len(t, rec.errs, 1)
	assert.Equal(t, err, rec.errs[0])
	sub := rec.md[0]["subsystem"]
	assert.Equal(t, "pwa", sub["package"])
	assert.Equal(t, opts, sub["options"])
	assert.Equal(t, res.InvocationID, sub["invocation"])
}

func TestApplyTelemetryDisabled(t *testing.T) {
	t.Parallel()
	m := fixture(t, map[string]string{"angular.json": angularJSONNoServiceWorker})
	rec := &recorder{}

	_, err := (&Rule{Reporter: rec}).Apply(context.Background(), m, model.Options{Project: "app", DisableTelemetry: true})
	require.Error(t, err)
	assert.Empty(t, rec.errs)
}

func TestApplyReporterPanicIsSwallowed(t *testing.T) {
	t.Parallel()
	m := fixture(t, map[string]string{"angular.json": angularJSONNoServiceWorker})
	rule := &Rule{Log: testutil.NewTestLogger(t), Reporter: &recorder{boom: true}}

	assert.NotPanics(t, func() {
		_, err := rule.Apply(context.Background(), m, model.Options{Project: "app"})
		require.ErrorIs(t, err, model.ErrPrecondition)
	})
}

func TestApplySuccessIsNotReported(t *testing.T) {
	t.Parallel()
	rec := &recorder{}

	_, err := (&Rule{Reporter: rec}).Apply(context.Background(), fixture(t, nil), model.Options{Project: "app"})
	require.NoError(t, err)
	assert.Empty(t, rec.errs)
}
