package launch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/communicate"
	"github.com/wizardpipe/wizard/internal/wizard/assets"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

func launchSession() *session.Session {
	return &session.Session{
		User:    &models.User{UserName: "alice"},
		Project: &models.Project{Name: "demo", Path: "/tmp/demo"},
	}
}

func testTree() *assets.TreeContext {
	return &assets.TreeContext{
		Domain:   &models.Node{Name: "assets"},
		Category: &models.Node{Name: "characters"},
		Asset:    &models.Node{Name: "hero"},
		Stage:    &models.Stage{Node: models.Node{Name: "modeling"}},
		Variant:  &models.Node{Name: "main"},
		WorkEnv:  &models.WorkEnv{Node: models.Node{ID: 7}},
	}
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"="), true
		}
	}
	return "", false
}

func TestBuildEnvCarriesIdentityAndPort(t *testing.T) {
	l := NewLauncher(launchSession(), "", 0)
	env, err := l.buildEnv(testTree(), &models.Software{Name: "blender"}, 42, 5123)
	require.Nil(t, err)

	want := map[string]string{
		EnvUser:             "alice",
		EnvProject:          "demo",
		EnvProjectPath:      "/tmp/demo",
		EnvWorkEnvID:        "7",
		EnvVersionID:        "42",
		EnvDomainName:       "assets",
		EnvCategoryName:     "characters",
		EnvAssetName:        "hero",
		EnvStageName:        "modeling",
		EnvVariantName:      "main",
		EnvStringVariant:    "characters/hero/modeling/main",
		communicate.EnvPort: "5123",
	}
	for key, expected := range want {
		got, ok := envValue(env, key)
		require.True(t, ok, key)
		assert.Equal(t, expected, got, key)
	}
}

func TestBuildEnvDistinctPortsPerInstance(t *testing.T) {
	l := NewLauncher(launchSession(), "", 0)
	tree := testTree()
	software := &models.Software{Name: "blender"}

	first, err := l.buildEnv(tree, software, 1, 6001)
	require.Nil(t, err)
	second, err := l.buildEnv(tree, software, 2, 6002)
	require.Nil(t, err)

	a, _ := envValue(first, communicate.EnvPort)
	b, _ := envValue(second, communicate.EnvPort)
	assert.NotEqual(t, a, b)
}

func TestBuildEnvRejectsCorruptSoftwareJSON(t *testing.T) {
	l := NewLauncher(launchSession(), "", 0)
	_, err := l.buildEnv(testTree(), &models.Software{
		Name:               "maya",
		AdditionnalScripts: "not json",
	}, 1, 6000)
	assert.ErrorIs(t, err, ErrLaunch)
}
