package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDebounce collapses bursts of editor writes into one reload.
const reloadDebounce = 500 * time.Millisecond

// Loader reads custom policies from disk. A .rego file holds one policy; a
// .json file holds either one policy or a bundle with a "policies" list.
type Loader struct {
	logger zerolog.Logger

	mu     sync.Mutex
	parsed map[string][]Policy

	watcher *fsnotify.Watcher
}

// Bundle groups policies shipped together in one JSON file.
type Bundle struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Policies []Policy `json:"policies"`
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		parsed: make(map[string][]Policy),
	}
}

// LoadFromPaths loads every policy below the given files and directories.
// A missing path is an error; an unreadable file inside a directory is
// logged and skipped.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var out []Policy
	for _, root := range paths {
		files, err := policyFiles(root)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", root, err)
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			policies, err := l.parseFile(file)
			if err != nil {
				if file == root {
					return nil, err
				}
				l.logger.Warn().Err(err).Str("path", file).Msg("Skipping unreadable policy file")
				continue
			}
			out = append(out, policies...)
		}
	}

	l.logger.Info().
		Int("total", len(out)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")
	return out, nil
}

// policyFiles lists the policy files at root in lexical order. A file root
// is returned as is, whatever its extension.
func policyFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isPolicyFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

// parseFile returns the policies in one file, reusing the previous parse
// until the watcher reports a change.
func (l *Loader) parseFile(path string) ([]Policy, error) {
	l.mu.Lock()
	cached, ok := l.parsed[path]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policies []Policy
	switch filepath.Ext(path) {
	case ".rego":
		policies = []Policy{regoPolicy(path, data)}
	case ".json":
		policies, err = jsonPolicies(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	l.mu.Lock()
	l.parsed[path] = policies
	l.mu.Unlock()

	l.logger.Debug().Str("path", path).Int("policies", len(policies)).Msg("Policy file parsed")
	return policies, nil
}

func (l *Loader) forget(path string) {
	l.mu.Lock()
	delete(l.parsed, path)
	l.mu.Unlock()
}

// regoPolicy builds a policy from a .rego file. Header comments of the form
// "# severity: HIGH" and "# checks: ID_1, ID_2" set the default severity and
// the reported check IDs; other header lines form the description.
func regoPolicy(path string, data []byte) Policy {
	description, directives := parseHeader(string(data))
	now := time.Now()

	p := Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: description,
		Rego:        string(data),
		Severity:    SeverityMedium,
		Enabled:     true,
		Tags:        []string{},
		Metadata:    map[string]interface{}{"source": path},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sev := directives["severity"]; sev != "" {
		p.Severity = Severity(strings.ToUpper(sev))
	}
	for _, id := range strings.Split(directives["checks"], ",") {
		if id = strings.TrimSpace(id); id != "" {
			p.Checks = append(p.Checks, id)
		}
	}
	return p
}

// jsonPolicies decodes a single policy or a bundle.
func jsonPolicies(data []byte) ([]Policy, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}

	var policies []Policy
	if _, isBundle := probe["policies"]; isBundle {
		var b Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("failed to parse bundle: %w", err)
		}
		policies = b.Policies
	} else {
		var p Policy
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
		}
		policies = []Policy{p}
	}

	now := time.Now()
	for i := range policies {
		p := &policies[i]
		if p.Name == "" {
			return nil, fmt.Errorf("policy %d has no name", i)
		}
		if p.Severity == "" {
			p.Severity = SeverityMedium
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	}
	return policies, nil
}

var headerKeys = map[string]bool{"severity": true, "checks": true}

// parseHeader reads the leading comment block of a Rego file.
func parseHeader(content string) (string, map[string]string) {
	var lines []string
	directives := make(map[string]string)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}

		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if comment == "" {
			continue
		}
		if key, value, ok := strings.Cut(comment, ":"); ok {
			key = strings.ToLower(strings.TrimSpace(key))
			if headerKeys[key] {
				directives[key] = strings.TrimSpace(value)
				continue
			}
		}
		lines = append(lines, comment)
	}

	return strings.Join(lines, " "), directives
}

// Watch reloads every path whenever a policy file below them changes and
// hands the full set to reloadFn. It returns once the watcher is armed.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher

	for _, root := range paths {
		if err := l.watchTree(root); err != nil {
			l.logger.Warn().Err(err).Str("path", root).Msg("Failed to watch policy path")
		}
	}

	go l.watchLoop(ctx, paths, reloadFn)

	l.logger.Info().Int("paths", len(paths)).Msg("Started watching policy paths")
	return nil
}

func (l *Loader) watchTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return l.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

func (l *Loader) watchLoop(ctx context.Context, paths []string, reloadFn func([]Policy) error) {
	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = l.watcher.Close()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isPolicyFile(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")
			l.forget(event.Name)
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			policies, err := l.LoadFromPaths(ctx, paths)
			if err == nil {
				err = reloadFn(policies)
			}
			if err != nil {
				l.logger.Error().Err(err).Msg("Policy reload failed, keeping the previous set")
				continue
			}
			l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
