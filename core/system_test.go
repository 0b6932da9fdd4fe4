package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/scaffold/config"
	"github.com/soyeahso/scaffold/db"
	"github.com/soyeahso/scaffold/plugin"
	"github.com/soyeahso/scaffold/server"
)

// probe is a managed plugin implementing every lifecycle capability.
// It records which hooks ran, in order, and can be told to detach or
// fail at a given hook.
type probe struct {
	plugin.Base

	setup  *config.Setup
	models map[string]db.Definition
	route  string
	body   string

	detachOn map[plugin.Hook]bool
	errOn    map[plugin.Hook]error

	mu       sync.Mutex
	calls    []string
	logLines []string
	seenCfg  *config.Config
}

func newProbe() *probe {
	return &probe{
		detachOn: make(map[plugin.Hook]bool),
		errOn:    make(map[plugin.Hook]error),
	}
}

func (p *probe) record(h plugin.Hook) {
	p.mu.Lock()
	p.calls = append(p.calls, string(h))
	p.mu.Unlock()
}

func (p *probe) callSeq() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *probe) saw(h plugin.Hook) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == string(h) {
			return true
		}
	}
	return false
}

func (p *probe) SetCoreReference(ctx context.Context, core plugin.Core) error {
	p.record(plugin.HookSetCoreReference)
	return p.errOn[plugin.HookSetCoreReference]
}

func (p *probe) ConfigSetup(ctx context.Context) (*config.Setup, error) {
	p.record(plugin.HookConfigSetup)
	return p.setup, p.errOn[plugin.HookConfigSetup]
}

func (p *probe) PreInit(ctx context.Context) (bool, error) {
	p.record(plugin.HookPreInit)
	return p.detachOn[plugin.HookPreInit], p.errOn[plugin.HookPreInit]
}

func (p *probe) HandleConfig(ctx context.Context, cfg *config.Config) (bool, error) {
	p.record(plugin.HookHandleConfig)
	p.mu.Lock()
	p.seenCfg = cfg
	p.mu.Unlock()
	return p.detachOn[plugin.HookHandleConfig], p.errOn[plugin.HookHandleConfig]
}

func (p *probe) HandleServer(ctx context.Context, srv *server.Server) error {
	p.record(plugin.HookHandleServer)
	if p.route != "" {
		srv.HandleFunc(p.route, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, p.body)
		})
	}
	return p.errOn[plugin.HookHandleServer]
}

func (p *probe) HandleClient(ctx context.Context, cl *retryablehttp.Client) error {
	p.record(plugin.HookHandleClient)
	return p.errOn[plugin.HookHandleClient]
}

func (p *probe) CollectModels(ctx context.Context) (map[string]db.Definition, error) {
	p.record(plugin.HookCollectModels)
	return p.models, p.errOn[plugin.HookCollectModels]
}

func (p *probe) Init(ctx context.Context) (bool, error) {
	p.record(plugin.HookInit)
	return p.detachOn[plugin.HookInit], p.errOn[plugin.HookInit]
}

func (p *probe) PostInit(ctx context.Context) (bool, error) {
	p.record(plugin.HookPostInit)
	return p.detachOn[plugin.HookPostInit], p.errOn[plugin.HookPostInit]
}

func (p *probe) Ready(ctx context.Context) error {
	p.record(plugin.HookReady)
	return p.errOn[plugin.HookReady]
}

func (p *probe) HandleLog(level, message string) {
	p.mu.Lock()
	p.logLines = append(p.logLines, level+" "+message)
	p.mu.Unlock()
}

func (p *probe) Close(ctx context.Context) error {
	p.record(plugin.HookClose)
	return p.errOn[plugin.HookClose]
}

// baseOpts returns options suitable for an isolated test system: temp
// base dir, discarded logs, in-memory database, ephemeral server port.
func baseOpts(t *testing.T) []Option {
	t.Helper()
	return []Option{
		WithBaseDir(t.TempDir()),
		WithLogWriter(io.Discard),
		WithDatabasePath(":memory:"),
		WithServer(),
		WithClient(),
		WithConfigDefaults(map[string]any{"server.port": 0}),
	}
}

func TestSystem_FullLifecycle(t *testing.T) {
	p := newProbe()
	p.models = map[string]db.Definition{
		"Note": {
			Table: "notes",
			Columns: map[string]db.Column{
				"id":   {Type: "TEXT", PrimaryKey: true},
				"body": {Type: "TEXT", NotNull: true},
			},
		},
	}

	sys, err := New("lifecycle-test", append(baseOpts(t), WithPlugin("probe", plugin.Instance(p)))...)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	assert.Equal(t, []string{
		"setCoreReference", "configSetup", "preInit", "handleConfig",
		"handleServer", "handleClient", "collectModels",
		"init", "postInit", "ready",
	}, p.callSeq())

	// The managed back-reference was attached before any hook ran.
	assert.Same(t, sys, p.Core().(*System))
	assert.NotNil(t, p.Log())

	// The contributed model made it into the schema.
	var count int
	err = sys.DB().SQL().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='notes'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	roster := sys.Plugins().Roster()
	require.Len(t, roster, 1)
	assert.Equal(t, "probe", roster[0].ID)
	assert.True(t, roster[0].Managed)
}

func TestSystem_StartTwice(t *testing.T) {
	sys, err := New("twice-test", baseOpts(t)...)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	assert.ErrorIs(t, sys.Start(context.Background()), ErrAlreadyStarted)
}

func TestSystem_PreInitDetach(t *testing.T) {
	leaving := newProbe()
	leaving.detachOn[plugin.HookPreInit] = true
	staying := newProbe()

	sys, err := New("detach-test", append(baseOpts(t),
		WithPlugin("leaving", plugin.Instance(leaving)),
		WithPlugin("staying", plugin.Instance(staying)),
	)...)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	assert.Equal(t, 1, sys.Plugins().Count())
	_, ok := sys.Plugins().Get("staying")
	assert.True(t, ok)

	// The detached plugin saw nothing past preInit.
	assert.True(t, leaving.saw(plugin.HookPreInit))
	assert.False(t, leaving.saw(plugin.HookHandleConfig))
	assert.False(t, leaving.saw(plugin.HookInit))
	assert.True(t, staying.saw(plugin.HookInit))
}

func TestSystem_InitErrorAborts(t *testing.T) {
	p := newProbe()
	p.errOn[plugin.HookInit] = assert.AnError

	sys, err := New("abort-test", append(baseOpts(t), WithPlugin("probe", plugin.Instance(p)))...)
	require.NoError(t, err)

	err = sys.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "init")

	assert.False(t, p.saw(plugin.HookPostInit))
	assert.False(t, p.saw(plugin.HookReady))

	sys.Close(context.Background())
}

func TestSystem_CallerDefaultsWin(t *testing.T) {
	p := newProbe()
	p.setup = config.NewSetup()
	p.setup.Fields["probe.greeting"] = config.Field{Type: "string"}
	p.setup.Defaults["probe.greeting"] = "plugin"

	sys, err := New("override-test", append(baseOpts(t),
		WithPlugin("probe", plugin.Instance(p)),
		WithConfigDefaults(map[string]any{"probe.greeting": "caller"}),
	)...)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	assert.Equal(t, "caller", sys.Config().String("probe.greeting", ""))
	require.NotNil(t, p.seenCfg)
	assert.Equal(t, "caller", p.seenCfg.String("probe.greeting", ""))
}

func TestSystem_DisabledPluginRemoved(t *testing.T) {
	base := t.TempDir()
	cfgYAML := "plugins:\n  disabled:\n    - gone\nserver:\n  port: 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), []byte(cfgYAML), 0o600))

	gone := newProbe()
	stays := newProbe()

	sys, err := New("disable-test",
		WithBaseDir(base),
		WithLogWriter(io.Discard),
		WithDatabasePath(":memory:"),
		WithServer(),
		WithClient(),
		WithPlugin("gone", plugin.Instance(gone)),
		WithPlugin("stays", plugin.Instance(stays)),
	)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	assert.Equal(t, 1, sys.Plugins().Count())
	_, ok := sys.Plugins().Get("gone")
	assert.False(t, ok)

	// Removal happens right after config load: the disabled plugin still
	// contributed its setup fragment but never handled config.
	assert.True(t, gone.saw(plugin.HookConfigSetup))
	assert.False(t, gone.saw(plugin.HookHandleConfig))
	assert.False(t, gone.saw(plugin.HookInit))
}

func TestSystem_HTTPRoundTrip(t *testing.T) {
	p := newProbe()
	p.route = "GET /ping"
	p.body = "pong"

	sys, err := New("roundtrip-test", append(baseOpts(t), WithPlugin("probe", plugin.Instance(p)))...)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	addr := sys.Server().Addr()
	require.NotEmpty(t, addr)

	resp, err := sys.Client().Get("http://" + addr + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))

	assert.Regexp(t, regexp.MustCompile(`^\d+(\.\d+)?ms$`), resp.Header.Get("X-Response-Time"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestSystem_LogFanOut(t *testing.T) {
	p := newProbe()

	sys, err := New("fanout-test", append(baseOpts(t), WithPlugin("probe", plugin.Instance(p)))...)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	sys.Logger().Info().Msg("fan-out check")

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, line := range p.logLines {
			if line == "info fan-out check" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSystem_ConfigFileCreatedOnFirstRun(t *testing.T) {
	base := t.TempDir()

	sys, err := New("firstrun-test",
		WithBaseDir(base),
		WithLogWriter(io.Discard),
		WithDatabasePath(":memory:"),
		WithServer(),
		WithClient(),
		WithConfigDefaults(map[string]any{"server.port": 0}),
	)
	require.NoError(t, err)

	require.NoError(t, sys.Start(context.Background()))
	defer sys.Close(context.Background())

	data, err := os.ReadFile(filepath.Join(base, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "logging:")
}

func TestSystem_CloseRunsHookAndIsIdempotent(t *testing.T) {
	p := newProbe()

	sys, err := New("close-test", append(baseOpts(t), WithPlugin("probe", plugin.Instance(p)))...)
	require.NoError(t, err)
	require.NoError(t, sys.Start(context.Background()))

	require.NoError(t, sys.Close(context.Background()))
	assert.True(t, p.saw(plugin.HookClose))

	assert.NoError(t, sys.Close(context.Background()))
}

func TestSystem_FactoryPluginResolvedWithCore(t *testing.T) {
	var got plugin.Core
	p := newProbe()

	sys, err := New("factory-test", append(baseOpts(t),
		WithPlugin("made", plugin.Factory(func(core plugin.Core) plugin.Plugin {
			got = core
			return p
		})),
	)...)
	require.NoError(t, err)

	assert.Same(t, sys, got.(*System))
	inst, ok := sys.Plugins().Get("made")
	require.True(t, ok)
	assert.Same(t, p, inst.(*probe))
}
