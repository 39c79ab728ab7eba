package themeexpand

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTheme(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644))
}

func newTestExpander(t *testing.T) (*Expander, string, string) {
	t.Helper()
	root := t.TempDir()
	userDir := filepath.Join(root, "config")
	dataDir := filepath.Join(root, "data")
	e := &Expander{
		UserConfigDir: userDir,
		DataDirs:      []string{dataDir},
		DataDir:       filepath.Join(root, "compiled"),
		Compatibles:   []string{"vendor,device", "vendor,generic"},
		log:           flog.New("test"),
	}
	return e, userDir, dataDir
}

func TestLoadFlatThemeWithNoParent(t *testing.T) {
	e, _, dataDir := newTestExpander(t)
	writeTheme(t, dataDir, "default", `{"name":"default","profiles":[
		{"name":"full","feedbacks":[{"type":"Dummy","event_name":"e1","duration_ms":10}]}
	]}`)

	th, err := e.Load("default")
	require.NoError(t, err)
	fb, ok := th.Lookup(types.ProfileFull, "e1")
	require.True(t, ok)
	assert.Equal(t, uint32(10), fb.DurationMs)
}

func TestLoadFollowsParentChainChildWins(t *testing.T) {
	e, _, dataDir := newTestExpander(t)
	writeTheme(t, dataDir, "default", `{"name":"default","profiles":[
		{"name":"full","feedbacks":[{"type":"Dummy","event_name":"e1","duration_ms":10}]}
	]}`)
	writeTheme(t, dataDir, "child", `{"name":"child","parent-name":"default","profiles":[
		{"name":"full","feedbacks":[{"type":"Dummy","event_name":"e1","duration_ms":99}]}
	]}`)

	th, err := e.Load("child")
	require.NoError(t, err)
	assert.Equal(t, "child", th.Name)
	fb, ok := th.Lookup(types.ProfileFull, "e1")
	require.True(t, ok)
	assert.Equal(t, uint32(99), fb.DurationMs)
}

func TestLoadUserConfigOverridesDataDir(t *testing.T) {
	e, userDir, dataDir := newTestExpander(t)
	writeTheme(t, dataDir, "default", `{"name":"default","profiles":[]}`)
	writeTheme(t, userDir, "default", `{"name":"default","profiles":[
		{"name":"silent","feedbacks":[{"type":"Dummy","event_name":"e1"}]}
	]}`)

	th, err := e.Load("default")
	require.NoError(t, err)
	_, ok := th.Lookup(types.ProfileSilent, "e1")
	assert.True(t, ok)
}

func TestLoadDefaultSearchesCompatiblesInOrder(t *testing.T) {
	e, _, dataDir := newTestExpander(t)
	writeTheme(t, dataDir, "vendor,generic", `{"name":"generic","profiles":[
		{"name":"full","feedbacks":[{"type":"Dummy","event_name":"e1","duration_ms":1}]}
	]}`)

	th, err := e.Load(DefaultThemeName)
	require.NoError(t, err)
	assert.Equal(t, "generic", th.Name)
}

func TestLoadMissingNonDefaultFallsBackToDefault(t *testing.T) {
	e, _, dataDir := newTestExpander(t)
	writeTheme(t, dataDir, "default", `{"name":"default","profiles":[
		{"name":"full","feedbacks":[{"type":"Dummy","event_name":"e1","duration_ms":1}]}
	]}`)

	th, err := e.Load("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "default", th.Name)
}

func TestLoadDefaultMissingIsFatal(t *testing.T) {
	e, _, _ := newTestExpander(t)
	_, err := e.Load(DefaultThemeName)
	require.Error(t, err)
	assert.IsType(t, &types.ThemeExpand{}, err)
}

func TestLoadDefaultWithParentNameRejected(t *testing.T) {
	e, _, dataDir := newTestExpander(t)
	writeTheme(t, dataDir, "default", `{"name":"default","parent-name":"other","profiles":[]}`)

	_, err := e.Load(DefaultThemeName)
	require.Error(t, err)
	assert.IsType(t, &types.ThemeExpand{}, err)
}

func TestLoadDepthExceeded(t *testing.T) {
	e, _, dataDir := newTestExpander(t)
	// build a chain of 12 links, each parenting the next, terminating at "root".
	for i := 0; i < 12; i++ {
		name := themeNameAt(i)
		parent := themeNameAt(i + 1)
		writeTheme(t, dataDir, name, `{"name":"`+name+`","parent-name":"`+parent+`","profiles":[]}`)
	}
	writeTheme(t, dataDir, themeNameAt(12), `{"name":"root","profiles":[]}`)

	_, err := e.Load(themeNameAt(0))
	require.Error(t, err)
	assert.IsType(t, &types.ThemeExpand{}, err)
}

func TestLoadStaticFixtureChildOverridesParent(t *testing.T) {
	root, err := filepath.Abs(filepath.Join("..", "testdata", "themes"))
	require.NoError(t, err)
	e := &Expander{
		UserConfigDir: filepath.Join(root, "nonexistent-user-dir"),
		DataDirs:      []string{root},
		DataDir:       filepath.Join(root, "nonexistent-compiled-dir"),
		log:           flog.New("test"),
	}

	th, err := e.Load("child")
	require.NoError(t, err)
	assert.Equal(t, "child", th.Name)

	// child overrides button-pressed with a Led feedback...
	fb, ok := th.Lookup(types.ProfileFull, "button-pressed")
	require.True(t, ok)
	assert.Equal(t, types.KindLed, fb.Kind)

	// ...but still inherits phone-incoming-call from default unchanged.
	fb, ok = th.Lookup(types.ProfileFull, "phone-incoming-call")
	require.True(t, ok)
	assert.Equal(t, types.KindDummy, fb.Kind)
}

func TestLoadParentCycleIsRejected(t *testing.T) {
	e, _, dataDir := newTestExpander(t)
	writeTheme(t, dataDir, "alpha", `{"name":"alpha","parent-name":"beta","profiles":[]}`)
	writeTheme(t, dataDir, "beta", `{"name":"beta","parent-name":"alpha","profiles":[]}`)

	_, err := e.Load("alpha")
	require.Error(t, err)
	assert.IsType(t, &types.ThemeExpand{}, err)
}

func themeNameAt(i int) string {
	return "link" + string(rune('a'+i))
}
