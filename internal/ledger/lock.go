package ledger

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLedgerBusy reports that another run holds the ledger lock.
var ErrLedgerBusy = errors.New("ledger is in use by another run")

// RunLock is an advisory lock guarding a ledger for the duration of one sync run.
type RunLock struct {
	path string
	lock *flock.Flock
}

// LockPath returns the lock file used for a ledger.
func LockPath(ledgerPath string) string {
	return ledgerPath + ".lock"
}

// AcquireRunLock takes the ledger's run lock without blocking.
func AcquireRunLock(ledgerPath string) (*RunLock, error) {
	path := LockPath(ledgerPath)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock file %s)", ErrLedgerBusy, path)
	}
	return &RunLock{path: path, lock: lock}, nil
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.path
}

// Release drops the lock.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
