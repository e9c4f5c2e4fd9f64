package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	ignore "github.com/sabhiram/go-gitignore"

	"codesage/internal/config"
	"codesage/internal/models"
)

type Options struct {
	Extensions      []string
	ExcludeDirs     []string
	ExcludePatterns []string
	UseGitignore    bool
}

func OptionsFromConfig(cfg *config.RAGConfig) Options {
	return Options{
		Extensions:      cfg.Extensions,
		ExcludeDirs:     cfg.ExcludeDirs,
		ExcludePatterns: cfg.ExcludePatterns,
		UseGitignore:    cfg.UseGitignore,
	}
}

// readOutcome is the tagged result of reading one candidate file
type readOutcome struct {
	file models.SourceFile
	skip bool
	err  error
}

type walker struct {
	root       string
	display    string
	exts       map[string]struct{}
	dirs       map[string]struct{}
	patterns   []string
	gitignore  *ignore.GitIgnore
	candidates []string
}

// Scan walks root and returns every non-empty file with an allowed extension.
// Unreadable files are skipped; only a failing root aborts the scan.
func Scan(ctx context.Context, root string, opts Options) ([]models.SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: '%s' is not a valid directory", models.ErrInvalidPath, root)
	}

	// WalkDir does not descend into a symlinked root, so walk the resolved
	// directory and report paths under the root as given.
	walkRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPath, err)
	}

	w := &walker{
		root:     walkRoot,
		display:  root,
		exts:     toSet(opts.Extensions),
		dirs:     toSet(opts.ExcludeDirs),
		patterns: opts.ExcludePatterns,
	}
	if opts.UseGitignore {
		w.gitignore = loadGitignore(walkRoot)
	}

	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == walkRoot {
				return err
			}
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == walkRoot {
			return nil
		}
		if d.IsDir() {
			if w.excludeDir(path, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if w.keepFile(path) {
			w.candidates = append(w.candidates, filepath.Join(w.display, filepath.FromSlash(w.rel(path))))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	var files []models.SourceFile
	for _, path := range w.candidates {
		out := readSource(path)
		switch {
		case out.err != nil:
			log.Debug().Err(out.err).Str("path", path).Msg("Skipping file")
		case out.skip:
			log.Debug().Str("path", path).Msg("Skipping empty file")
		default:
			files = append(files, out.file)
		}
	}

	log.Debug().Int("candidates", len(w.candidates)).Int("files", len(files)).Str("root", root).Msg("Scan finished")
	return files, nil
}

func (w *walker) excludeDir(path, name string) bool {
	if _, ok := w.dirs[name]; ok {
		return true
	}
	rel := w.rel(path)
	if w.gitignore != nil && w.gitignore.MatchesPath(rel+"/") {
		return true
	}
	return w.matchPattern(rel, name)
}

func (w *walker) keepFile(path string) bool {
	ext := filepath.Ext(path)
	if _, ok := w.exts[ext]; !ok {
		return false
	}
	rel := w.rel(path)
	if w.gitignore != nil && w.gitignore.MatchesPath(rel) {
		return false
	}
	return !w.matchPattern(rel, filepath.Base(path))
}

func (w *walker) matchPattern(rel, base string) bool {
	for _, pattern := range w.patterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func (w *walker) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

// readSource reads a file, dropping byte sequences that are not valid UTF-8
func readSource(path string) readOutcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return readOutcome{err: fmt.Errorf("%w: %v", models.ErrFileRead, err)}
	}
	content := strings.ToValidUTF8(string(data), "")
	if strings.TrimSpace(content) == "" {
		return readOutcome{skip: true}
	}
	return readOutcome{file: models.SourceFile{Path: path, Content: content}}
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Debug().Err(err).Msg("Ignoring unreadable .gitignore")
		}
		return nil
	}
	return gi
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
