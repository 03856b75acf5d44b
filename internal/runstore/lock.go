package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirName   = ".smart-ytdl.lock"
	lockOwnerFile = "owner.json"
)

// DirLock marks a download directory as owned by one process so two queues
// never write into it at once.
type DirLock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireDirLock(dir string) (DirLock, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return DirLock{}, fmt.Errorf("directory is required")
	}
	if err := Mkdir(target); err != nil {
		return DirLock{}, err
	}

	lockDir := filepath.Join(target, lockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			ownerPath := filepath.Join(lockDir, lockOwnerFile)
			var owner lockOwner
			if readErr := ReadJSON(ownerPath, &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return DirLock{}, fmt.Errorf(
					"download directory is in use: %s (pid=%d created_at=%s host=%s)",
					target, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
			return DirLock{}, fmt.Errorf("download directory is in use: %s", target)
		}
		return DirLock{}, fmt.Errorf("acquire lock for %s: %w", target, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), owner); err != nil {
		_ = os.Remove(lockDir)
		return DirLock{}, fmt.Errorf("write lock owner for %s: %w", target, err)
	}

	return DirLock{lockDir: lockDir}, nil
}

func (l DirLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
