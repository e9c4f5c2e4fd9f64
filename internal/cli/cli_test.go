package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"codesage/internal/config"
	"codesage/internal/embedding"
	"codesage/internal/testutil"
)

type harness struct {
	stdout, stderr bytes.Buffer
	embedder       *testutil.FakeEmbedder
	llm            *testutil.FakeLLM
	embedderBuilt  bool
	llmBuilt       bool
}

func newHarness() *harness {
	return &harness{
		embedder: &testutil.FakeEmbedder{},
		llm:      &testutil.FakeLLM{Response: "The project has no obvious issues."},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		NewEmbedder: func(cfg *config.Config) (embeddings.Embedder, error) {
			h.embedderBuilt = true
			return h.embedder, nil
		},
		NewLLM: func(cfg *config.Config) (llms.Model, error) {
			h.llmBuilt = true
			return h.llm, nil
		},
	}
}

func (h *harness) run(args ...string) int {
	args = append(args, "--config", filepath.Join(os.TempDir(), "codesage-missing-config.yaml"))
	return Execute(context.Background(), args, h.deps())
}

func pythonFile(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "def step_%d(state):\n    state.count += %d\n    return state\n\n", i, i)
	}
	return b.String()[:n]
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestExecute_SingleFileProject(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.py":                pythonFile(5000),
		"node_modules/x/y.js": "module.exports = {}\n",
		"notes.txt":           "not source",
	})
	h := newHarness()

	code := h.run(root)

	require.Equal(t, 0, code, h.stderr.String())
	assert.Empty(t, h.stderr.String())

	out := h.stdout.String()
	for _, section := range []string{"CodeSage v1.0", "Scanning project", "Chunking code", "Building vector index", "Running analysis", "Result"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "Found 1 source files")
	assert.Contains(t, out, "Query: Analyze this project and list architectural and logical issues.")
	assert.True(t, strings.HasSuffix(out, "\nThe project has no obvious issues.\n"))

	embedded := len(h.embedder.Embedded)
	assert.GreaterOrEqual(t, embedded, 5)
	assert.Contains(t, out, fmt.Sprintf("Created %d chunks", embedded))
	assert.Contains(t, out, fmt.Sprintf("Vector index ready (%d vectors)", embedded))

	require.Len(t, h.llm.Messages, 2)
	user := testutil.MessageText(h.llm.Messages[1])
	assert.Equal(t, min(6, embedded), strings.Count(user, "# File: "+filepath.Join(root, "a.py")))
}

func TestExecute_AskAfterPath(t *testing.T) {
	root := writeProject(t, map[string]string{"app.ts": "export function main() { return 1; }\n"})
	h := newHarness()

	code := h.run(root, "--ask", "What does main return?", "--top-k", "2")

	require.Equal(t, 0, code, h.stderr.String())
	user := testutil.MessageText(h.llm.Messages[1])
	assert.True(t, strings.HasSuffix(user, "\n\nQuestion: What does main return?"))
	assert.Equal(t, 1, strings.Count(user, "What does main return?"))
}

func TestExecute_NoSupportedFiles(t *testing.T) {
	root := writeProject(t, map[string]string{
		"README.md":    "# docs\n",
		"build/gen.py": "x = 1\n",
		"empty.py":     "  \n",
	})
	h := newHarness()

	code := h.run(root)

	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(h.stderr.String(), "[error] "))
	assert.Contains(t, h.stderr.String(), "no supported source files")
	assert.Equal(t, 1, strings.Count(h.stderr.String(), "\n"))
	assert.False(t, h.embedderBuilt)
	assert.False(t, h.llmBuilt)
}

func TestExecute_PathIsFile(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "x = 1\n"})
	h := newHarness()

	code := h.run(filepath.Join(root, "a.py"))

	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "is not a valid directory")
	assert.NotContains(t, h.stdout.String(), "Scanning project")
	assert.False(t, h.embedderBuilt)
}

func TestExecute_SymlinkedProject(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := writeProject(t, map[string]string{"a.py": pythonFile(800)})
	link := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.Symlink(target, link))
	h := newHarness()

	code := h.run(link)

	require.Equal(t, 0, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "Found 1 source files")
	user := testutil.MessageText(h.llm.Messages[1])
	assert.Contains(t, user, "# File: "+filepath.Join(link, "a.py"))
}

func TestExecute_VerboseReportsCache(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": pythonFile(800), "b.py": pythonFile(800)})
	h := newHarness()
	deps := h.deps()
	deps.NewEmbedder = func(cfg *config.Config) (embeddings.Embedder, error) {
		h.embedderBuilt = true
		return embedding.NewCachedEmbedder(h.embedder, cfg.RAG.CacheSize), nil
	}

	args := []string{root, "--verbose", "--config", filepath.Join(os.TempDir(), "codesage-missing-config.yaml")}
	code := Execute(context.Background(), args, deps)

	require.Equal(t, 0, code, h.stderr.String())
	assert.Contains(t, h.stderr.String(), "Embedding cache")
	assert.Contains(t, h.stderr.String(), "cached_vectors=")
	// both files are identical, so each distinct chunk text is embedded once
	assert.Contains(t, h.stdout.String(), fmt.Sprintf("Created %d chunks", 2*len(h.embedder.Embedded)))
}

func TestExecute_MissingPath(t *testing.T) {
	h := newHarness()
	code := Execute(context.Background(), nil, h.deps())

	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(h.stderr.String(), "[error] "))
}

func TestExecute_ServiceFailures(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": pythonFile(800)})

	t.Run("embedding", func(t *testing.T) {
		h := newHarness()
		h.embedder.Err = errors.New("dial tcp 127.0.0.1:11434: connection refused")

		assert.Equal(t, 1, h.run(root))
		assert.Contains(t, h.stderr.String(), "[error] embedding service error")
		assert.False(t, h.llmBuilt)
	})

	t.Run("llm", func(t *testing.T) {
		h := newHarness()
		h.llm.Err = errors.New("model \"llama3\" not found")

		assert.Equal(t, 1, h.run(root))
		assert.Contains(t, h.stderr.String(), "[error] llm service error")
		assert.NotContains(t, h.stdout.String(), "Result")
	})
}

func TestExecute_DryRun(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": pythonFile(3000), "b.js": "const b = 2;\n"})
	h := newHarness()

	code := h.run(root, "--dry-run")

	require.Equal(t, 0, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), `"chunk_index": 0`)
	assert.NotContains(t, h.stdout.String(), "Building vector index")
	assert.False(t, h.embedderBuilt)
	assert.False(t, h.llmBuilt)
}

func TestExecute_HTMLFormat(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "x = 1\n"})
	h := newHarness()
	h.llm.Response = "## Findings\n\n- `a.py` shadows a builtin"

	code := h.run(root, "--format", "html")

	require.Equal(t, 0, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "<h2>Findings</h2>")
	assert.Contains(t, h.stdout.String(), "<code>a.py</code>")
}

func TestExecute_UnknownFormat(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "x = 1\n"})
	h := newHarness()

	assert.Equal(t, 1, h.run(root, "--format", "pdf"))
	assert.Contains(t, h.stderr.String(), "unknown format")
}
