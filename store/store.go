// Package store implements the persistent event store (C3): three files in
// a fixed directory, atomic swap, and external-tamper detection.
package store

import (
	"os"
	"sync"
	"syscall"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/util/errwrap"
	"github.com/maemo-leste/alarmd/util/recwatch"
)

// File names, fixed within the configured directory (§4.3, §6.3).
const (
	FileQueue    = "queue"
	FileBackup   = "queue.bak"
	FileTemp     = "queue.tmp"
)

// TamperHoldoff is the grace period after detecting an out-of-band change
// to the canonical file before the in-memory state is force-written (§4.3).
const TamperHoldoff = 60 * time.Second

// statSignature is the (device, inode, size, mtime) tuple compared before
// every save to detect external tampering.
type statSignature struct {
	dev, inode uint64
	size       int64
	mtime      time.Time
}

func stat(path string) (statSignature, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return statSignature{}, false
	}
	sig := statSignature{size: fi.Size(), mtime: fi.ModTime()}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		sig.dev, sig.inode = uint64(st.Dev), st.Ino
	}
	return sig, true
}

// Store owns the on-disk representation of the queue.
type Store struct {
	Logf func(format string, v ...interface{})

	dir                                   string
	queuePath, backupPath, tempPath       string

	mu              sync.Mutex
	lastSaved       []byte
	lastStat        statSignature
	haveLastStat    bool
	tamperSince     time.Time
	tamperDetected  bool

	watcher *recwatch.RecWatcher
	events  chan recwatch.Event
}

// Open prepares a Store rooted at dir, joining the three fixed file names
// with filepath-securejoin so a maliciously-derived directory can never
// escape via `..` components.
func Open(dir string, logf func(format string, v ...interface{})) (*Store, error) {
	q, err := securejoin.SecureJoin(dir, FileQueue)
	if err != nil {
		return nil, errwrap.Wrapf(err, "securejoin queue")
	}
	b, err := securejoin.SecureJoin(dir, FileBackup)
	if err != nil {
		return nil, errwrap.Wrapf(err, "securejoin queue.bak")
	}
	tmp, err := securejoin.SecureJoin(dir, FileTemp)
	if err != nil {
		return nil, errwrap.Wrapf(err, "securejoin queue.tmp")
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Store{
		Logf:       logf,
		dir:        dir,
		queuePath:  q,
		backupPath: b,
		tempPath:   tmp,
	}, nil
}

// WatchTamper starts an fsnotify watch on the store directory as a
// secondary, faster tamper signal alongside the stat-based comparison that
// Save always performs. Events are available on Events(); the caller (the
// core rethink loop) pokes a stat recheck on receipt rather than waiting
// for the next scheduled save.
func (s *Store) WatchTamper() error {
	w, err := recwatch.NewRecWatcher(s.dir, recwatch.Logf(s.Logf))
	if err != nil {
		return errwrap.Wrapf(err, "watch tamper dir")
	}
	s.watcher = w
	return nil
}

// Events exposes the tamper-watch channel; nil if WatchTamper was never
// called.
func (s *Store) Events() chan recwatch.Event {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Events()
}

// Close stops the tamper watch, if any.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Load reads the canonical file, falling back to the backup, then the
// temp file. It returns the decoded events, default snooze, and whether a
// non-canonical file was used (forcing an immediate save is the caller's
// responsibility, per §4.3).
func (s *Store) Load() ([]*queue.Event, int32, bool, error) {
	for i, path := range []string{s.queuePath, s.backupPath, s.tempPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		events, snooze, err := Decode(data)
		if err != nil {
			s.Logf("store: failed to decode %s: %v", path, err)
			continue
		}
		nonCanonical := i != 0
		if sig, ok := stat(s.queuePath); ok {
			s.mu.Lock()
			s.lastStat, s.haveLastStat = sig, true
			s.mu.Unlock()
		}
		s.mu.Lock()
		s.lastSaved = Encode(events, snooze)
		s.mu.Unlock()
		return events, snooze, nonCanonical, nil
	}
	return nil, 0, false, nil // no file exists yet: empty queue, defaults apply
}

// CheckTamper compares the canonical file's current stat signature against
// the one remembered after the last save. A mismatch starts (or continues)
// the holdoff; Save skips the write (returning nil) while the holdoff is
// active, and callers poll ForceDue to learn when a forced write is due.
func (s *Store) CheckTamper(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveLastStat {
		return
	}
	sig, ok := stat(s.queuePath)
	if !ok || sig == s.lastStat {
		return
	}
	if !s.tamperDetected {
		s.tamperDetected = true
		s.tamperSince = now
		s.Logf("store: external change to %s detected, holding off %s", s.queuePath, TamperHoldoff)
	}
}

// ForceDue reports whether the tamper holdoff has elapsed and a forced
// overwrite is now due.
func (s *Store) ForceDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tamperDetected && now.Sub(s.tamperSince) >= TamperHoldoff
}

// Save encodes events and the default snooze, skips the write if nothing
// changed since the last save, and otherwise performs the atomic
// write-tmp/fsync/rename/rename/re-stat sequence (§4.3). force bypasses
// the unchanged-content skip, used for the tamper holdoff expiry and
// shutdown flush.
func (s *Store) Save(events []*queue.Event, defaultSnooze int32, now time.Time, force bool) error {
	s.CheckTamper(now)
	enc := Encode(events, defaultSnooze)

	s.mu.Lock()
	unchanged := !force && s.lastSaved != nil && string(enc) == string(s.lastSaved)
	tamperActive := s.tamperDetected && now.Sub(s.tamperSince) < TamperHoldoff
	s.mu.Unlock()

	if unchanged {
		return nil
	}
	if tamperActive && !force {
		return nil // still inside the holdoff; wait for ForceDue
	}

	if err := os.WriteFile(s.tempPath, enc, 0o600); err != nil {
		return errwrap.Wrapf(err, "write %s", s.tempPath)
	}
	if err := fsyncPath(s.tempPath); err != nil {
		return errwrap.Wrapf(err, "fsync %s", s.tempPath)
	}
	// rename queue -> queue.bak (best effort: the canonical file may not
	// exist yet on first save).
	if _, err := os.Stat(s.queuePath); err == nil {
		if err := os.Rename(s.queuePath, s.backupPath); err != nil {
			return errwrap.Wrapf(err, "rename %s -> %s", s.queuePath, s.backupPath)
		}
	}
	if err := os.Rename(s.tempPath, s.queuePath); err != nil {
		return errwrap.Wrapf(err, "rename %s -> %s", s.tempPath, s.queuePath)
	}

	sig, _ := stat(s.queuePath)
	s.mu.Lock()
	s.lastSaved = enc
	s.lastStat = sig
	s.haveLastStat = true
	s.tamperDetected = false
	s.mu.Unlock()
	return nil
}

func fsyncPath(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
