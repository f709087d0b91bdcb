package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"text/template"
	"time"

	"github.com/gofrs/flock"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// DefaultTemplate renders a BuildConfiguration.xml selecting the compiler
const DefaultTemplate = `<?xml version="1.0" encoding="utf-8" ?>
<Configuration xmlns="https://www.unrealengine.com/BuildConfiguration">
	<WindowsPlatform>
		<CompilerVersion>{{.Compiler}}</CompilerVersion>
	</WindowsPlatform>
</Configuration>
`

const (
	backupSuffix  = ".marketpack.bak"
	absentSuffix  = ".marketpack.absent"
	lockRetryWait = 100 * time.Millisecond

	// createdDirMarker is the absent marker content when the slot directory
	// was created for the installation and must go away on restore.
	createdDirMarker = "created-dir"
)

// SlotData is the template data for the installed descriptor
type SlotData struct {
	Compiler string
	Version  string
}

// Manager owns the single machine-wide toolchain slot. At most one Handle is
// live at a time, within this process (semaphore) and across processes (flock).
type Manager struct {
	slotPath string
	tmpl     *template.Template
	sem      chan struct{}
	lock     *flock.Flock
	log      logger.Logger
}

// NewManager creates a manager for the configured slot
func NewManager(cfg *types.ToolchainConfig, log logger.Logger) (*Manager, error) {
	if cfg == nil || cfg.SlotPath == "" {
		return nil, fmt.Errorf("%w: toolchain slot path is required", types.ErrConfig)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	text := cfg.Template
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("toolchain").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid toolchain template: %v", types.ErrConfig, err)
	}

	return &Manager{
		slotPath: cfg.SlotPath,
		tmpl:     tmpl,
		sem:      make(chan struct{}, 1),
		lock:     flock.New(LockPath(cfg)),
		log:      log.WithTarget("toolchain"),
	}, nil
}

// LockPath returns the cross-process lock file of a slot. It lives in the
// configured lock file or the system temp directory, never beside the slot.
func LockPath(cfg *types.ToolchainConfig) string {
	if cfg.LockFile != "" {
		return cfg.LockFile
	}
	slot, err := filepath.Abs(cfg.SlotPath)
	if err != nil {
		slot = filepath.Clean(cfg.SlotPath)
	}
	h := fnv.New64a()
	h.Write([]byte(slot))
	return filepath.Join(os.TempDir(), fmt.Sprintf("marketpack-toolchain-%x.lock", h.Sum64()))
}

// SlotPath returns the managed file path
func (m *Manager) SlotPath() string {
	return m.slotPath
}

func (m *Manager) backupPath() string { return m.slotPath + backupSuffix }
func (m *Manager) absentPath() string { return m.slotPath + absentSuffix }

// Pending reports whether a previous installation was never restored
func (m *Manager) Pending() bool {
	return utils.FileExists(m.backupPath()) || utils.FileExists(m.absentPath())
}

// Handle is a live installation of a target's toolchain
type Handle struct {
	m      *Manager
	target types.Target
	once   sync.Once
	err    error
}

// Target returns the target the slot was installed for
func (h *Handle) Target() types.Target {
	return h.target
}

// Release restores the slot to its pre-acquire state and frees it for the next
// holder. Only the first call does any work; later calls return the first result.
func (h *Handle) Release() error {
	h.once.Do(func() {
		h.err = h.m.restore()
		if h.err != nil {
			h.m.log.Error("Failed to restore toolchain slot",
				logger.WithField("slot", h.m.slotPath),
				logger.WithField("error", h.err),
			)
		} else {
			h.m.log.Debug("Restored toolchain slot", logger.WithField("version", h.target.Version))
		}
		h.m.unlock()
	})
	return h.err
}

// Acquire waits for the slot, records its current state and installs the
// descriptor for target.
func (m *Manager) Acquire(ctx context.Context, target types.Target) (*Handle, error) {
	if err := m.lockSlot(ctx); err != nil {
		return nil, err
	}

	if m.Pending() {
		m.log.Warn("Restoring toolchain slot left behind by an earlier run", logger.WithField("slot", m.slotPath))
		if err := m.restore(); err != nil {
			m.unlock()
			return nil, err
		}
	}

	if err := m.backup(); err != nil {
		m.unlock()
		return nil, err
	}

	if err := m.install(target); err != nil {
		if rerr := m.restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		m.unlock()
		return nil, err
	}

	m.log.Info("Installed toolchain",
		logger.WithField("version", target.Version),
		logger.WithField("compiler", target.Toolchain.Compiler),
	)
	return &Handle{m: m, target: target}, nil
}

// With runs fn while holding the slot for target. The slot is released on
// every exit path, including a panic in fn.
func (m *Manager) With(ctx context.Context, target types.Target, fn func(context.Context) error) (err error) {
	h, err := m.Acquire(ctx, target)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := h.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn(ctx)
}

// Recover restores a slot left installed by a crashed run. It reports whether
// anything was restored. Nothing is touched when no restore is pending.
func (m *Manager) Recover(ctx context.Context) (bool, error) {
	if !m.Pending() {
		return false, nil
	}
	if err := m.lockSlot(ctx); err != nil {
		return false, err
	}
	defer m.unlock()

	if !m.Pending() {
		return false, nil
	}
	if err := m.restore(); err != nil {
		return false, err
	}
	m.log.Warn("Recovered toolchain slot from an interrupted run", logger.WithField("slot", m.slotPath))
	return true, nil
}

func (m *Manager) lockSlot(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := os.MkdirAll(filepath.Dir(m.lock.Path()), 0755); err != nil {
		<-m.sem
		return fmt.Errorf("%w: %v", types.ErrResourceState, err)
	}

	locked, err := m.lock.TryLockContext(ctx, lockRetryWait)
	if err != nil || !locked {
		<-m.sem
		if err == nil {
			err = errors.New("lock not acquired")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: failed to lock toolchain slot: %v", types.ErrResourceState, err)
	}
	return nil
}

func (m *Manager) unlock() {
	if err := m.lock.Unlock(); err != nil {
		m.log.Warn("Failed to unlock toolchain slot", logger.WithField("error", err))
	}
	<-m.sem
}

func (m *Manager) backup() error {
	data, err := os.ReadFile(m.slotPath)
	switch {
	case err == nil:
		if err := utils.WriteFileAtomic(m.backupPath(), data, 0644); err != nil {
			return fmt.Errorf("%w: failed to back up toolchain slot: %v", types.ErrResourceState, err)
		}
	case os.IsNotExist(err):
		var marker []byte
		dir := filepath.Dir(m.slotPath)
		if !utils.DirectoryExists(dir) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("%w: failed to create toolchain slot directory: %v", types.ErrResourceState, err)
			}
			marker = []byte(createdDirMarker)
		}
		if err := os.WriteFile(m.absentPath(), marker, 0644); err != nil {
			return fmt.Errorf("%w: failed to record absent toolchain slot: %v", types.ErrResourceState, err)
		}
	default:
		return fmt.Errorf("%w: failed to read toolchain slot: %v", types.ErrResourceState, err)
	}
	return nil
}

func (m *Manager) install(target types.Target) error {
	var buf bytes.Buffer
	err := m.tmpl.Execute(&buf, SlotData{Compiler: target.Toolchain.Compiler, Version: target.Version})
	if err != nil {
		return fmt.Errorf("%w: failed to render toolchain descriptor: %v", types.ErrConfig, err)
	}
	if err := utils.WriteFileAtomic(m.slotPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("%w: failed to install toolchain descriptor: %v", types.ErrResourceState, err)
	}
	return nil
}

// restore puts back the backed-up content, or removes the slot when it did not exist
func (m *Manager) restore() error {
	if utils.FileExists(m.backupPath()) {
		if err := os.Rename(m.backupPath(), m.slotPath); err != nil {
			return fmt.Errorf("%w: failed to restore %s: %v", types.ErrResourceState, m.slotPath, err)
		}
		os.Remove(m.absentPath())
		return nil
	}

	if utils.FileExists(m.absentPath()) {
		marker, _ := os.ReadFile(m.absentPath())
		if err := os.Remove(m.slotPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: failed to remove %s: %v", types.ErrResourceState, m.slotPath, err)
		}
		if err := os.Remove(m.absentPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: failed to clear absent marker: %v", types.ErrResourceState, err)
		}
		if string(marker) == createdDirMarker {
			// Fails harmlessly when something else was written there meanwhile.
			os.Remove(filepath.Dir(m.slotPath))
		}
		return nil
	}

	return fmt.Errorf("%w: no saved state for %s", types.ErrResourceState, m.slotPath)
}
