package guardian

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileEvent is a filesystem change reported by an EventSource. Path is absolute.
type FileEvent struct {
	Path   string
	Action ChangeAction
}

// EventSource delivers filesystem change notifications for a tree.
type EventSource interface {
	Events() <-chan FileEvent
	Errors() <-chan error
	Close() error
}

// fsnotifySource watches every non-ignored directory under root. fsnotify is
// not recursive, so directories created later are added as they appear.
type fsnotifySource struct {
	w      *fsnotify.Watcher
	root   string
	ignore ignoreSet
	events chan FileEvent
	errors chan error
	done   chan struct{}
	once   sync.Once
}

// NewFSNotifySource starts watching root, skipping the ignore set of opts.
func NewFSNotifySource(root string, opts Options) (EventSource, error) {
	opts = opts.withDefaults()
	absRoot, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	s := &fsnotifySource{
		w:      w,
		root:   absRoot,
		ignore: newIgnoreSet(opts),
		events: make(chan FileEvent, 256),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}
	if err := s.addTree(absRoot, nil); err != nil {
		_ = w.Close()
		return nil, err
	}
	go s.loop()
	return s, nil
}

func (s *fsnotifySource) Events() <-chan FileEvent { return s.events }
func (s *fsnotifySource) Errors() <-chan error     { return s.errors }

func (s *fsnotifySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.w.Close()
	})
	return err
}

// addTree registers dir and its non-ignored subdirectories. found, when set,
// is called for each regular file already present.
func (s *fsnotifySource) addTree(dir string, found func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if !d.IsDir() {
			if found != nil && d.Type().IsRegular() {
				found(path)
			}
			return nil
		}
		if path != s.root && s.ignore.skipDir(s.rel(path), d.Name()) {
			return filepath.SkipDir
		}
		if err := s.w.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			slog.Debug("watch: add directory failed", "path", path, "error", err)
		}
		return nil
	})
}

func (s *fsnotifySource) rel(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (s *fsnotifySource) loop() {
	defer close(s.events)
	defer close(s.errors)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.w.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.w.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}

func (s *fsnotifySource) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err == nil && info.IsDir() {
			rel := s.rel(ev.Name)
			if s.ignore.containsIgnored(rel) || s.ignore.skipDir(rel, info.Name()) {
				return
			}
			// Files can land in a new directory before it is watched.
			err := s.addTree(ev.Name, func(path string) {
				s.send(FileEvent{Path: path, Action: ActionCreated})
			})
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Debug("watch: add new directory failed", "path", ev.Name, "error", err)
			}
			return
		}
		s.send(FileEvent{Path: ev.Name, Action: ActionCreated})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		s.send(FileEvent{Path: ev.Name, Action: ActionDeleted})
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		s.send(FileEvent{Path: ev.Name, Action: ActionModified})
	}
}

func (s *fsnotifySource) send(ev FileEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
