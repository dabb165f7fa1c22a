package connectors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xela07ax/devit-dispatch-prototype/internal/engine"
)

// WorkspaceProvisioner — файловая реализация провижинера песочниц:
// каждой задаче — свой каталог под baseDir. Достаточно для агентов,
// работающих с чекаутом кода; контейнерная изоляция подключается
// другой реализацией того же контракта.
type WorkspaceProvisioner struct {
	baseDir string
}

func NewWorkspaceProvisioner(baseDir string) (*WorkspaceProvisioner, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare workspace root: %w", err)
	}
	return &WorkspaceProvisioner{baseDir: baseDir}, nil
}

func (p *WorkspaceProvisioner) Create(_ context.Context, key string, spec engine.SandboxSpec) (engine.SandboxHandle, error) {
	dir := filepath.Join(p.baseDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engine.SandboxHandle{}, fmt.Errorf("failed to create workspace for %s: %w", spec.AgentType, err)
	}
	return engine.SandboxHandle{Key: key, Workspace: dir}, nil
}

// Destroy идемпотентен: RemoveAll по отсутствующему пути — no-op.
func (p *WorkspaceProvisioner) Destroy(_ context.Context, key string) error {
	return os.RemoveAll(filepath.Join(p.baseDir, key))
}
