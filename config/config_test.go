package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/docformat/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  addr: ":9090"
storage:
  type: memory
format:
  indent_mode: fixed
  profile:
    font: 黑体
    font_size: 28
`)
	t.Setenv("DOCFMT_FORMAT_FILE_TIMEOUT", "45s")
	t.Setenv("MINIO_BUCKET_NAME", "legacy-bucket")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "legacy-bucket", cfg.Storage.Minio.BucketName)
	assert.Equal(t, 45*time.Second, cfg.Format.FileTimeout)
	assert.Equal(t, "黑体", cfg.Format.Profile.Font)
	assert.Equal(t, 28, cfg.Format.Profile.FontSizeHalfPoints)
	assert.Equal(t, 2.2, cfg.Format.Profile.LineSpacingMultiplier)

	indent, layout, err := cfg.Format.Modes()
	require.NoError(t, err)
	assert.Equal(t, models.IndentFixed, indent)
	assert.Equal(t, models.ImageLayoutFixed, layout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeFile(t, "config.yaml", "format:\n  image_layout: stretch\n")
	_, err := Load(path)
	assert.Error(t, err)

	path = writeFile(t, "config.yaml", "storage:\n  type: ftp\n")
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadPresets(t *testing.T) {
	presets, err := LoadPresets("")
	require.NoError(t, err)
	assert.Equal(t, []string{"compact", "default", "official"}, presets.Names())

	path := writeFile(t, "presets.yaml", `
presets:
  report:
    font: 宋体
    fontSize: 24
    lineSpacing: 1.25
    paragraphSpacing: 6
    firstLineIndent: 2
`)
	presets, err = LoadPresets(path)
	require.NoError(t, err)
	report, err := presets.Lookup("report")
	require.NoError(t, err)
	assert.Equal(t, 1.25, report.LineSpacingMultiplier)
	assert.Len(t, presets, 4)

	_, err = presets.Lookup("nope")
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "presets:\n  broken:\n    font: \"\"\n    fontSize: 0\n")
	_, err = LoadPresets(bad)
	assert.Error(t, err)
}
