package local

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// VenvProvisioner builds a disposable Python environment for one run and
// installs the project's dependencies plus the scanner tools into it.
type VenvProvisioner struct {
	// Dir is the virtualenv directory name inside the work dir.
	Dir string
	// InstallCommand and TestCommand are the configured dependency install
	// and test commands, split on whitespace and executed without a shell.
	InstallCommand string
	TestCommand    string
	Log            zerolog.Logger
}

// BinDir returns the venv's executable directory for PATH injection.
func (p *VenvProvisioner) BinDir(workDir string) string {
	return filepath.Join(workDir, p.Dir, "bin")
}

func (p *VenvProvisioner) Provision(ctx context.Context, workDir string) error {
	venv := filepath.Join(workDir, p.Dir)

	cmd := exec.CommandContext(ctx, "python3", "-m", "venv", venv)
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("virtualenv creation failed: %w (output=%s)", err, string(out))
	}

	if err := p.runInVenv(ctx, workDir, p.InstallCommand, "dependency install"); err != nil {
		return err
	}
	// a failing test suite means the checkout is not worth analyzing
	if err := p.runInVenv(ctx, workDir, p.TestCommand, "test run"); err != nil {
		return err
	}
	p.Log.Debug().Str("venv", venv).Msg("tool environment provisioned")
	return nil
}

func (p *VenvProvisioner) runInVenv(ctx context.Context, workDir, command, label string) error {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	fields := strings.Fields(command)
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = workDir
	cmd.Env = envWithPath(p.BinDir(workDir))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w (output=%s)", label, err, string(out))
	}
	return nil
}

// Teardown removes the virtualenv. Called on every exit path when workspace
// cleanup is enabled.
func (p *VenvProvisioner) Teardown(workDir string) error {
	return removeAll(filepath.Join(workDir, p.Dir))
}
