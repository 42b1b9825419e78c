package guardian

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ScanFunc rescans the tree after a batch of changes. The batch is empty for
// the initial scan.
type ScanFunc func(ctx context.Context, batch *ChangeBatch) (*Snapshot, error)

// ScanTrigger reports the outcome of one flushed batch.
type ScanTrigger struct {
	Batch    []Change
	Snapshot *Snapshot
	Err      error
	// Attempt counts scans of this batch, starting at 1.
	Attempt int
	// Terminal is set when a failed batch will not be retried.
	Terminal bool
}

type scanOutcome struct {
	batch *ChangeBatch
	snap  *Snapshot
	err   error
}

// Watcher turns filesystem events into debounced, serialized rescans.
type Watcher struct {
	root      string
	opts      Options
	scan      ScanFunc
	source    EventSource
	hashes    *HashStore
	classes   *classifier
	ignore    ignoreSet
	artifacts []string

	scanMu   sync.Mutex
	triggers chan ScanTrigger
	runOnce  sync.Once
	closeErr error
	closed   sync.Once
}

// OpenWatcher watches root with fsnotify and calls scan for every flushed batch.
func OpenWatcher(root string, opts Options, scan ScanFunc) (*Watcher, error) {
	source, err := NewFSNotifySource(root, opts)
	if err != nil {
		return nil, err
	}
	w, err := NewWatcher(root, opts, scan, source)
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	return w, nil
}

// NewWatcher builds a watcher over an arbitrary event source. Unless
// ScanOnStart is set, the hash store is brought up to date with the tree so the
// first modify events can be compared against real digests.
func NewWatcher(root string, opts Options, scan ScanFunc, source EventSource) (*Watcher, error) {
	if scan == nil {
		return nil, errors.New("watcher: nil scan func")
	}
	if source == nil {
		return nil, errors.New("watcher: nil event source")
	}
	opts = opts.withDefaults()
	absRoot, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	hashes, err := OpenHashStore(opts.StatePath(absRoot, DefaultHashFile))
	if err != nil {
		return nil, err
	}
	if !opts.ScanOnStart {
		idx, err := BuildFileIndex(context.Background(), absRoot, opts)
		if err != nil {
			return nil, err
		}
		if err := hashes.Refresh(context.Background(), idx, opts.workerCount()); err != nil {
			return nil, fmt.Errorf("seed hash store: %w", err)
		}
	}

	return &Watcher{
		root:      absRoot,
		opts:      opts,
		scan:      scan,
		source:    source,
		hashes:    hashes,
		classes:   newClassifier(opts),
		ignore:    newIgnoreSet(opts),
		artifacts: opts.artifactPaths(absRoot),
		triggers:  make(chan ScanTrigger, 64),
	}, nil
}

// Triggers delivers one ScanTrigger per completed scan. It is closed when Run returns.
func (w *Watcher) Triggers() <-chan ScanTrigger { return w.triggers }

// HashStore exposes the digests the watcher compares modify events against.
func (w *Watcher) HashStore() *HashStore { return w.hashes }

// Close stops the event source. A running Run returns once its source drains.
func (w *Watcher) Close() error {
	w.closed.Do(func() {
		w.closeErr = w.source.Close()
	})
	return w.closeErr
}

// Run processes events until ctx is done or the event source closes. It may
// only be called once. A scan in flight when Run stops is waited for.
func (w *Watcher) Run(ctx context.Context) error {
	started := false
	w.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("watcher: Run called twice")
	}
	defer close(w.triggers)

	var (
		pending  = NewChangeBatch()
		queued   = NewChangeBatch()
		inFlight bool
		attempt  int
		timer    *time.Timer
		timerC   <-chan time.Time
		results  = make(chan scanOutcome, 1)
	)

	arm := func() {
		if timerC != nil {
			return
		}
		timer = time.NewTimer(w.opts.DebounceWindow)
		timerC = timer.C
	}
	start := func(batch *ChangeBatch) {
		inFlight = true
		attempt++
		go func() {
			snap, err := w.runScan(ctx, batch)
			results <- scanOutcome{batch: batch, snap: snap, err: err}
		}()
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		if inFlight {
			<-results
		}
	}()

	if w.opts.ScanOnStart {
		start(NewChangeBatch())
	}

	events := w.source.Events()
	errs := w.source.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if w.record(pending, ev) {
				arm()
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch: event source error", "error", err)

		case <-timerC:
			timerC = nil
			if pending.Len() == 0 {
				continue
			}
			if inFlight {
				next := pending.Take()
				next.Merge(queued.Take())
				queued = next
				continue
			}
			start(pending.Take())

		case out := <-results:
			inFlight = false
			trigger := ScanTrigger{Batch: out.batch.Changes(), Snapshot: out.snap, Err: out.err, Attempt: attempt}
			if out.err != nil {
				// The initial scan has no changes to carry into a retry.
				if attempt > w.opts.MaxScanRetries || out.batch.Len() == 0 {
					trigger.Terminal = true
					attempt = 0
					slog.Error("watch: scan failed, giving up on batch", "changes", out.batch.Len(), "error", out.err)
				} else {
					// The failed batch is the oldest; newer entries win.
					pending.Merge(queued.Take())
					pending.Merge(out.batch)
					slog.Warn("watch: scan failed, will retry", "attempt", trigger.Attempt, "error", out.err)
					arm()
				}
			} else {
				attempt = 0
				w.commit(out.batch, out.snap)
			}
			w.emit(trigger)
			if !inFlight && queued.Len() > 0 {
				start(queued.Take())
			}
		}
	}
}

func (w *Watcher) runScan(ctx context.Context, batch *ChangeBatch) (*Snapshot, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()
	slog.Debug("watch: scanning", "changes", batch.Len())
	return w.scan(ctx, batch)
}

// record adds ev to pending unless it is filtered out or changes nothing.
// It reports whether the batch gained or changed an entry.
func (w *Watcher) record(pending *ChangeBatch, ev FileEvent) bool {
	rel, ok := w.relevant(ev.Path)
	if !ok {
		return false
	}
	change := Change{Path: rel, Action: ev.Action}
	if ev.Action == ActionDeleted {
		pending.Add(change)
		return true
	}

	digest, err := hashFileContents(ev.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			pending.Add(Change{Path: rel, Action: ActionDeleted})
			return true
		}
		slog.Debug("watch: hash failed", "path", rel, "error", err)
	}
	change.Digest = digest

	if ev.Action == ActionModified && digest != "" {
		if prev, ok := pending.Get(rel); ok {
			if prev.Digest == digest {
				return false
			}
		} else if stored, ok := w.hashes.Digest(rel); ok && stored == digest {
			return false
		}
	}
	pending.Add(change)
	return true
}

// relevant maps an absolute event path to its root-relative slash path and
// reports whether the watcher cares about it.
func (w *Watcher) relevant(absPath string) (string, bool) {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if isArtifact(rel, w.artifacts) || w.ignore.containsIgnored(rel) {
		return "", false
	}
	return rel, w.classes.watched(path.Base(rel))
}

// commit records the digests of a successful scan and persists them.
func (w *Watcher) commit(batch *ChangeBatch, snap *Snapshot) {
	if snap != nil {
		w.hashes.SyncSnapshot(snap)
	} else {
		for _, c := range batch.Changes() {
			if c.Action == ActionDeleted || c.Digest == "" {
				w.hashes.Delete(c.Path)
				continue
			}
			w.hashes.Set(HashEntry{Path: c.Path, ContentHash: c.Digest})
		}
	}
	if err := w.hashes.Save(); err != nil {
		slog.Warn("watch: save hash store failed", "error", err)
	}
}

func (w *Watcher) emit(t ScanTrigger) {
	select {
	case w.triggers <- t:
	default:
		slog.Warn("watch: trigger dropped, consumer is not keeping up", "changes", len(t.Batch))
	}
}
