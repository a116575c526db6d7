// Package locator resolves the model artifact on disk by probing an ordered
// list of candidate locations.
package locator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"

	"llmcore/internal/common/fsutil"
	"llmcore/pkg/types"
)

// DefaultModelFile is the bundled chat model (ChatML template family).
const DefaultModelFile = "qwen2.5-1.5b-instruct-q4_k_m.gguf"

// AppName names the per-user data directory.
const AppName = "llmcore"

// Options configures the candidate list. Zero values select defaults.
type Options struct {
	// ModelPath, when set, is probed first.
	ModelPath string
	// ModelFile is the artifact file name searched for under each models/ dir.
	ModelFile string
	// DataDir is the platform data directory; defaults to $XDG_DATA_HOME/llmcore.
	DataDir string
	// ResourceDir is the bundled resources directory; defaults to
	// <exe>/resources and <exe>/../Resources.
	ResourceDir string
	// DevPaths are directories holding ModelFile directly; defaults to
	// models and ../models relative to the working directory.
	DevPaths []string
	Logger   zerolog.Logger
}

// Locator finds the model artifact. It holds no mutable state.
type Locator struct {
	explicit string
	file     string
	dirs     []string
	log      zerolog.Logger
}

// New builds a Locator, applying defaults and expanding '~'.
func New(opts Options) *Locator {
	l := &Locator{file: strings.TrimSpace(opts.ModelFile), log: opts.Logger}
	if l.file == "" {
		l.file = DefaultModelFile
	}
	if p := strings.TrimSpace(opts.ModelPath); p != "" {
		l.explicit = expand(p)
	}

	dataDir := strings.TrimSpace(opts.DataDir)
	if dataDir == "" {
		dataDir = filepath.Join(xdg.DataHome, AppName)
	}
	l.dirs = append(l.dirs, filepath.Join(expand(dataDir), "models"))

	if rd := strings.TrimSpace(opts.ResourceDir); rd != "" {
		l.dirs = append(l.dirs, filepath.Join(expand(rd), "models"))
	} else if exe := fsutil.ExeDir(); exe != "" {
		l.dirs = append(l.dirs,
			filepath.Join(exe, "resources", "models"),
			filepath.Join(exe, "..", "Resources", "models"),
		)
	}

	dev := opts.DevPaths
	if len(dev) == 0 {
		dev = []string{"models", filepath.Join("..", "models")}
	}
	for _, d := range dev {
		if d = strings.TrimSpace(d); d != "" {
			l.dirs = append(l.dirs, expand(d))
		}
	}
	return l
}

func expand(p string) string {
	if e, err := fsutil.ExpandHome(p); err == nil {
		return e
	}
	return p
}

// ModelFile returns the artifact file name being searched for.
func (l *Locator) ModelFile() string { return l.file }

// Dirs returns the model directories in probe order.
func (l *Locator) Dirs() []string { return append([]string(nil), l.dirs...) }

// Candidates returns every path Locate probes, in order.
func (l *Locator) Candidates() []string {
	out := make([]string, 0, len(l.dirs)+1)
	if l.explicit != "" {
		out = append(out, l.explicit)
	}
	for _, d := range l.dirs {
		out = append(out, filepath.Join(d, l.file))
	}
	return out
}

// Locate returns the first candidate that exists as a regular file. A missing
// model is reported through ok, not as an error.
func (l *Locator) Locate() (path string, ok bool) {
	for _, c := range l.Candidates() {
		if fsutil.FileExists(c) {
			if abs, err := filepath.Abs(c); err == nil {
				c = abs
			}
			l.log.Debug().Str("event", "locate_hit").Str("path", c).Msg("model located")
			return c, true
		}
		l.log.Debug().Str("event", "locate_miss").Str("path", c).Send()
	}
	return "", false
}

// Scan lists every *.gguf file in the candidate directories, plus the
// explicit model path, deduplicated and in probe order. The entry Locate
// would pick is marked Selected. Missing directories are skipped.
func (l *Locator) Scan() ([]types.ModelEntry, error) {
	selected, _ := l.Locate()
	seen := make(map[string]bool)
	var out []types.ModelEntry
	add := func(p string, size int64) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if seen[p] {
			return
		}
		seen[p] = true
		out = append(out, types.ModelEntry{
			Name:      DisplayName(p),
			Path:      p,
			SizeBytes: size,
			Selected:  p == selected,
		})
	}
	if l.explicit != "" {
		if fi, err := os.Stat(l.explicit); err == nil && fi.Mode().IsRegular() {
			add(l.explicit, fi.Size())
		}
	}
	for _, d := range l.dirs {
		entries, err := scanDir(d)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			add(e.path, e.size)
		}
	}
	return out, nil
}

type ggufFile struct {
	path string
	size int64
}

// scanDir returns the *.gguf files of dir (case-insensitive), sorted by name.
func scanDir(dir string) ([]ggufFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var out []ggufFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		fi, err := e.Info()
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, ggufFile{path: filepath.Join(dir, name), size: fi.Size()})
	}
	return out, nil
}

// DisplayName is the file base name without its extension.
func DisplayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
