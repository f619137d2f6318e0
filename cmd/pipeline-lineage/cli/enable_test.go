package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("AZDO_TOKEN", "t")
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
azure_devops:
  organization: contoso
scan:
  targets:
    - name: deploy
      project: ProjectA
      pipeline_id: "1"
      enabled: true
    - name: docs
      project: ProjectB
      enabled: false
`), 0o644))

	prev := cfgPath
	cfgPath = p
	t.Cleanup(func() { cfgPath = prev })
	return p
}

func TestSetEnabled(t *testing.T) {
	p := useConfig(t)

	require.NoError(t, setEnabled("docs", true))
	c, err := config.Load(p)
	require.NoError(t, err)
	assert.Len(t, c.EnabledTargets(), 2)

	require.NoError(t, setEnabled("deploy", false))
	require.NoError(t, setEnabled("missing", false))
	c, err = config.Load(p)
	require.NoError(t, err)
	require.Len(t, c.EnabledTargets(), 1)
	assert.Equal(t, "ProjectB", c.EnabledTargets()[0].Project)
}

func TestCompleteTargetNames(t *testing.T) {
	useConfig(t)

	got, _ := completeTargetNames(nil, nil, "de")
	assert.Equal(t, []string{"deploy"}, got)

	got, _ = completeTargetNames(nil, nil, "")
	assert.Equal(t, []string{"deploy", "docs"}, got)
}
