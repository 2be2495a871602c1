package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgivc/pagesync/internal/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log_level: debug
output_dir: /srv/content
workers: 8
source:
  base_url: https://api.example.com/v1
  timeout: 45s
  page_size: 50
collections:
  - id: posts
    target_folder: /srv/content/posts
    layout: bundle
  - id: pages
    target_folder: /srv/content/pages
records:
  - id: 3f2504e0-4f89-41d3-9a0c-0305e82c3301
    target_folder: /srv/content/pages
classification:
  property: Status
  published_values: ["Published", "Archived"]
naming:
  title_overrides:
    About: flat
retry:
  max_attempts: 5
  initial_delay: 250ms
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvToken, "secret")

	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Source.Token)
	assert.Equal(t, 45*time.Second, time.Duration(cfg.Source.Timeout))
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Retry.InitialDelay))

	// Defaults fill what the file omits.
	assert.Equal(t, ".md", cfg.Naming.Extension)
	assert.Equal(t, "index.md", cfg.Naming.IndexFileName)
}

func TestLoadMissingTokenIsFatal(t *testing.T) {
	t.Setenv(EnvToken, "")

	_, err := Load(writeConfig(t, testConfig))

	assert.Error(t, err)
}

func TestLoadRejectsUnknownLayout(t *testing.T) {
	t.Setenv(EnvToken, "secret")

	bad := `
output_dir: /srv/content
source:
  base_url: https://api.example.com/v1
collections:
  - id: posts
    target_folder: /srv/content/posts
    layout: sideways
`

	_, err := Load(writeConfig(t, bad))

	assert.Error(t, err)
}

func TestLoadRejectsTargetFolderOutsideOutputDir(t *testing.T) {
	t.Setenv(EnvToken, "secret")

	// A folder outside output_dir would be written but never scanned back,
	// so every run would recreate its files and renames would leave the old
	// output behind.
	cases := map[string]string{
		"collection elsewhere": `
output_dir: /srv/content
source:
  base_url: https://api.example.com/v1
collections:
  - id: posts
    target_folder: /var/elsewhere/posts
`,
		"record elsewhere": `
output_dir: /srv/content
source:
  base_url: https://api.example.com/v1
records:
  - id: 3f2504e0-4f89-41d3-9a0c-0305e82c3301
    target_folder: /var/elsewhere/pages
`,
		"sibling sharing a name prefix": `
output_dir: /srv/content
source:
  base_url: https://api.example.com/v1
collections:
  - id: posts
    target_folder: /srv/content-archive/posts
`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, raw))

			assert.ErrorContains(t, err, "outside output_dir")
		})
	}
}

func TestLoadAcceptsTargetFolderEqualToOutputDir(t *testing.T) {
	t.Setenv(EnvToken, "secret")

	ok := `
output_dir: /srv/content
source:
  base_url: https://api.example.com/v1
collections:
  - id: posts
    target_folder: /srv/content
`

	_, err := Load(writeConfig(t, ok))

	assert.NoError(t, err)
}

func TestNamingResolverConfig(t *testing.T) {
	t.Setenv(EnvToken, "secret")

	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	nc := cfg.NamingResolverConfig()

	assert.Equal(t, naming.LayoutBundle, nc.CollectionLayouts["posts"])
	assert.NotContains(t, nc.CollectionLayouts, "pages", "no explicit layout, default applies")
	assert.Equal(t, naming.LayoutFlat, nc.TitleOverrides["About"])
	assert.Equal(t, naming.LayoutFlat, nc.DefaultLayout)
}
