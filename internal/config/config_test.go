package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  projectKey: demo
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)

	p := cfg.Pipeline
	assert.Equal(t, "main", p.Branch)
	assert.Equal(t, "dependency_scan_report.txt", p.ReportFile)
	assert.Equal(t, ".scan-venv", p.VenvDir)
	assert.Equal(t, []string{"pip-audit", "safety"}, p.Tools)
	assert.Equal(t, "pip install -r requirements.txt", p.InstallCommand)

	assert.True(t, cfg.QualityGateEnabled())
	assert.True(t, cfg.CleanupWorkspace())
	assert.Equal(t, 5*time.Minute, cfg.GateTimeout())
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
pipeline:
  projectKey: demo
  branch: develop
  reportFile: scan.txt
  tools: ["safety"]
  qualityGateEnabled: false
  qualityGateTimeoutMinutes: 2
  cleanupWorkspace: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "develop", cfg.Pipeline.Branch)
	assert.Equal(t, "scan.txt", cfg.Pipeline.ReportFile)
	assert.Equal(t, []string{"safety"}, cfg.Pipeline.Tools)
	assert.False(t, cfg.QualityGateEnabled())
	assert.False(t, cfg.CleanupWorkspace())
	assert.Equal(t, 2*time.Minute, cfg.GateTimeout())
}

func TestLoad_ProjectKeyRequired(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  projectName: no key here
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projectKey")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  projectKey: demo
  reprtFile: typo.txt
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_UnknownToolRejected(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  projectKey: demo
  tools: ["nmap"]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nmap")
}

func TestLoad_UnsupportedDriverRejected(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
pipeline:
  projectKey: demo
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("DB_PASSWORD", "from-env")
	t.Setenv("SONAR_TOKEN", "sonar-env")

	path := writeConfig(t, `
database:
  password: from-file
pipeline:
  projectKey: demo
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "sonar-env", cfg.Sonar.Token)
}

func TestDSNBuilders(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "mysql"
	cfg.Database.Host = "db.local"
	cfg.Database.Port = 3306
	cfg.Database.User = "scan"
	cfg.Database.Password = "secret"
	cfg.Database.Name = "auditron"

	assert.Equal(t,
		"scan:secret@tcp(db.local:3306)/auditron?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.MySQLDSN())

	cfg.Database.Port = 5432
	assert.Equal(t,
		"host=db.local port=5432 user=scan password=secret dbname=auditron sslmode=disable",
		cfg.PostgresDSN())
}
