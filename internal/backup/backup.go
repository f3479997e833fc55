// Package backup periodically snapshots the in-memory store to disk so
// a single-terminal deployment can survive a restart without Postgres.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Source is anything that can serialize its full state. The memory
// store implements it; the Postgres store does not (pg_dump owns that).
type Source interface {
	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, data []byte) error
}

type Runner struct {
	source   Source
	dir      string
	interval time.Duration
	keep     int
	stop     chan struct{}
	done     chan struct{}
}

func NewRunner(source Source, dir string, interval time.Duration) *Runner {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Runner{
		source:   source,
		dir:      dir,
		interval: interval,
		keep:     10,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start restores the newest snapshot if one exists, then begins the
// periodic backup loop.
func (r *Runner) Start(ctx context.Context) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	if latest := r.latestSnapshot(); latest != "" {
		data, err := os.ReadFile(latest)
		if err != nil {
			return fmt.Errorf("read snapshot %s: %w", latest, err)
		}
		if err := r.source.Restore(ctx, data); err != nil {
			return fmt.Errorf("restore snapshot %s: %w", latest, err)
		}
		log.Printf("[backup] restored state from %s", filepath.Base(latest))
	}

	go r.loop()
	return nil
}

func (r *Runner) Close() {
	close(r.stop)
	<-r.done
}

func (r *Runner) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.snapshotOnce(); err != nil {
				log.Printf("[backup] WARN: %v", err)
			}
		case <-r.stop:
			// Final snapshot on shutdown so no sale is lost.
			if err := r.snapshotOnce(); err != nil {
				log.Printf("[backup] WARN: final snapshot: %v", err)
			}
			return
		}
	}
}

func (r *Runner) snapshotOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := r.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	name := fmt.Sprintf("pos-%s.json", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(r.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}

	r.prune()
	return nil
}

// prune keeps the newest snapshots and removes the rest.
func (r *Runner) prune() {
	names := r.snapshotNames()
	if len(names) <= r.keep {
		return
	}
	for _, name := range names[:len(names)-r.keep] {
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
			log.Printf("[backup] WARN: prune %s: %v", name, err)
		}
	}
}

func (r *Runner) latestSnapshot() string {
	names := r.snapshotNames()
	if len(names) == 0 {
		return ""
	}
	return filepath.Join(r.dir, names[len(names)-1])
}

// snapshotNames returns snapshot file names sorted oldest first. The
// timestamped naming makes lexical order chronological.
func (r *Runner) snapshotNames() []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "pos-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
