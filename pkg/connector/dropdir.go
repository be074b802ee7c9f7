package connector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/m-mizutani/goerr/v2"
)

// Rule maps file names matching Pattern to a format and source.
type Rule struct {
	Pattern string
	Format  Format
	Source  model.Source
}

// DefaultRules are used when a DropDir is created without rules.
var DefaultRules = []Rule{
	{Pattern: "*.eml", Format: FormatEML},
	{Pattern: "*.gmail.json", Format: FormatGmail},
	{Pattern: "*.gcal.json", Format: FormatGoogleCalendar},
	{Pattern: "*.email.json", Format: FormatJSON, Source: model.SourceEmail},
	{Pattern: "*.event.json", Format: FormatJSON, Source: model.SourceCalendarEvent},
	{Pattern: "*.transaction.json", Format: FormatJSON, Source: model.SourceTransaction},
}

type compiledRule struct {
	Rule
	glob glob.Glob
}

// DropDir ingests files placed in a directory. With a fixed owner files are
// read from the directory itself. Without one each subdirectory belongs to
// the owner it is named after: <dir>/<owner>/<file>.
type DropDir struct {
	dir      string
	owner    model.OwnerID
	sink     Sink
	rules    []compiledRule
	debounce time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

type DropDirOption func(*DropDir)

// WithDebounce sets how long a file must be quiet before it is read.
func WithDebounce(d time.Duration) DropDirOption {
	return func(x *DropDir) {
		x.debounce = d
	}
}

func NewDropDir(dir string, owner model.OwnerID, sink Sink, rules []Rule, opts ...DropDirOption) (*DropDir, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}

	d := &DropDir{
		dir:      dir,
		owner:    owner,
		sink:     sink,
		debounce: 200 * time.Millisecond,
		seen:     make(map[string]time.Time),
	}
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid drop pattern", goerr.V("pattern", r.Pattern))
		}
		d.rules = append(d.rules, compiledRule{Rule: r, glob: g})
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ownerOf returns the owner a file at path is ingested for.
func (d *DropDir) ownerOf(path string) (model.OwnerID, bool) {
	rel, err := filepath.Rel(d.dir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	if d.owner != "" {
		return d.owner, len(parts) == 1
	}
	if len(parts) != 2 || !isOwnerDir(parts[0]) {
		return "", false
	}
	return model.OwnerID(parts[0]), true
}

func isOwnerDir(name string) bool {
	return name != "" && name != ".." && !strings.HasPrefix(name, ".")
}

func (d *DropDir) match(name string) (Rule, bool) {
	base := filepath.Base(name)
	for _, r := range d.rules {
		if r.glob.Match(base) {
			return r.Rule, true
		}
	}
	return Rule{}, false
}

// ReadFile converts the file at path with the first rule matching its name.
// Nil rules means DefaultRules.
func ReadFile(path string, rules []Rule) (model.Source, []byte, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	base := filepath.Base(path)

	for _, r := range rules {
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			return "", nil, goerr.Wrap(err, "invalid drop pattern", goerr.V("pattern", r.Pattern))
		}
		if !g.Match(base) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, goerr.Wrap(err, "failed to read file", goerr.V("path", path))
		}
		return Convert(r.Format, r.Source, data)
	}

	return "", nil, goerr.Wrap(model.ErrMalformedSourceData, "no rule matches file", goerr.V("path", path))
}

// Scan enqueues every matching file currently in the directory.
func (d *DropDir) Scan(ctx context.Context) (int, error) {
	if d.owner != "" {
		return d.scanDir(ctx, d.dir)
	}

	dirs, err := d.ownerDirs()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, dir := range dirs {
		m, err := d.scanDir(ctx, dir)
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

func (d *DropDir) ownerDirs() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read drop directory", goerr.V("dir", d.dir))
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && isOwnerDir(e.Name()) {
			dirs = append(dirs, filepath.Join(d.dir, e.Name()))
		}
	}
	return dirs, nil
}

func (d *DropDir) scanDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read drop directory", goerr.V("dir", dir))
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d.process(ctx, filepath.Join(dir, e.Name())) {
			n++
		}
	}
	return n, nil
}

// process converts and enqueues path. It returns true when the file was
// handed to the sink. A file is not enqueued again unless it changed.
func (d *DropDir) process(ctx context.Context, path string) bool {
	owner, ok := d.ownerOf(path)
	if !ok {
		return false
	}
	rule, ok := d.match(path)
	if !ok {
		return false
	}
	logger := logging.From(ctx).With("path", path, "owner_id", owner)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	d.mu.Lock()
	if last, ok := d.seen[path]; ok && !info.ModTime().After(last) {
		d.mu.Unlock()
		return false
	}
	d.seen[path] = info.ModTime()
	d.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read dropped file", "error", err)
		return false
	}

	source, payload, err := Convert(rule.Format, rule.Source, data)
	if err != nil {
		logger.Warn("failed to convert dropped file", "format", rule.Format, "error", err)
		return false
	}

	if err := d.sink.Enqueue(owner, source, payload); err != nil {
		logger.Warn("failed to enqueue dropped file", "error", err)
		d.mu.Lock()
		delete(d.seen, path)
		d.mu.Unlock()
		return false
	}

	logger.Debug("dropped file enqueued", "source", source)
	return true
}

// Watch scans the directory, then enqueues files as they are created or
// written until ctx is cancelled. Owner directories created while watching
// are picked up.
func (d *DropDir) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create watcher")
	}
	defer w.Close()

	if err := w.Add(d.dir); err != nil {
		return goerr.Wrap(err, "failed to watch drop directory", goerr.V("dir", d.dir))
	}
	logger := logging.From(ctx).With("dir", d.dir)

	if d.owner == "" {
		dirs, err := d.ownerDirs()
		if err != nil {
			return err
		}
		for _, dir := range dirs {
			if err := w.Add(dir); err != nil {
				return goerr.Wrap(err, "failed to watch owner directory", goerr.V("dir", dir))
			}
		}
	}

	if _, err := d.Scan(ctx); err != nil {
		return err
	}
	logger.Info("drop directory watcher started")

	pending := make(map[string]struct{})
	timer := time.NewTimer(d.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("drop directory watcher stopped")
			return nil

		case <-timer.C:
			for path := range pending {
				d.process(ctx, path)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if d.owner == "" && ev.Op&fsnotify.Create != 0 && filepath.Dir(ev.Name) == filepath.Clean(d.dir) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && isOwnerDir(info.Name()) {
					if err := w.Add(ev.Name); err != nil {
						logger.Warn("failed to watch owner directory", "path", ev.Name, "error", err)
						continue
					}
					// files written before the watch was added
					if _, err := d.scanDir(ctx, ev.Name); err != nil {
						logger.Warn("failed to scan owner directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if _, ok := d.match(ev.Name); !ok {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(d.debounce)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("drop directory watcher error", "error", watchErr)
		}
	}
}
