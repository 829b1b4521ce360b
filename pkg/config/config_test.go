package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/s3surge/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
metrics:
  enabled: true
  port: 9100
s3:
  bucket: load-test-bucket
  region: eu-west-1
  send_encrypted: true
  access_key_id: AKIDEXAMPLE
  secret_access_key: secret
workload:
  num_transfers: 50
  num_parts: 16
  part_size: 16MiB
  multipart: true
  upload: true
  download: true
  key_prefix: bench
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level is normalized to uppercase")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, "load-test-bucket", cfg.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, uint32(50), cfg.Workload.NumTransfers)
	assert.Equal(t, uint32(16), cfg.Workload.NumParts)
	assert.Equal(t, 16*bytesize.MiB, cfg.Workload.PartSize)
	assert.Equal(t, "bench", cfg.Workload.KeyPrefix)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
s3:
  bucket: b
  region: us-east-1
workload:
  upload: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, uint32(10), cfg.Workload.NumTransfers)
	assert.Equal(t, uint32(8), cfg.Workload.NumParts)
	assert.Equal(t, 5*bytesize.MB, cfg.Workload.PartSize)
	assert.Equal(t, "s3surge", cfg.Workload.KeyPrefix)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.True(t, cfg.S3.SendEncrypted)
	assert.True(t, cfg.Workload.Multipart)
	assert.True(t, cfg.Workload.Upload)
	assert.True(t, cfg.Workload.Download)
}

func TestLoadPartSizeFormats(t *testing.T) {
	tests := []struct {
		value string
		want  bytesize.ByteSize
	}{
		{`"5MB"`, 5 * bytesize.MB},
		{`"8Mi"`, 8 * bytesize.MiB},
		{`1048576`, bytesize.ByteSize(1048576)},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			path := writeConfig(t, `
s3:
  bucket: b
  region: us-east-1
workload:
  upload: true
  part_size: `+tt.value+`
`)
			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Workload.PartSize)
		})
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "bad log format",
			content: `
logging:
  format: xml
s3:
  bucket: b
  region: us-east-1
`,
		},
		{
			name: "bad metrics port",
			content: `
metrics:
  port: 70000
s3:
  bucket: b
  region: us-east-1
`,
		},
		{
			name: "secret without key id is fine but key id without secret is not",
			content: `
s3:
  bucket: b
  region: us-east-1
  access_key_id: AKIDEXAMPLE
`,
		},
		{
			name: "download without upload",
			content: `
s3:
  bucket: b
  region: us-east-1
workload:
  upload: false
  download: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.S3.Bucket = "round-trip"
	cfg.Workload.NumTransfers = 42
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "round-trip", loaded.S3.Bucket)
	assert.Equal(t, uint32(42), loaded.Workload.NumTransfers)
}

func TestValidateDefaults(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.S3.Bucket = "b"
	assert.NoError(t, Validate(cfg))
}
