package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"codesage/internal/chunker"
	"codesage/internal/config"
	"codesage/internal/embedding"
	"codesage/internal/helper"
	"codesage/internal/llmservice"
	"codesage/internal/models"
	"codesage/internal/rag"
	"codesage/internal/scanner"
)

const (
	FormatText = "text"
	FormatHTML = "html"
)

// Deps holds the process streams and the service constructors
type Deps struct {
	Stdout      io.Writer
	Stderr      io.Writer
	NewEmbedder func(cfg *config.Config) (embeddings.Embedder, error)
	NewLLM      func(cfg *config.Config) (llms.Model, error)
}

func DefaultDeps() Deps {
	return Deps{
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		NewEmbedder: embedding.NewFromConfig,
		NewLLM: func(cfg *config.Config) (llms.Model, error) {
			return llmservice.NewLLM(&cfg.LLM, cfg.RequestTimeout)
		},
	}
}

type options struct {
	ask        string
	configPath string
	format     string
	topK       int
	dryRun     bool
	verbose    bool
}

func NewRootCommand(deps Deps) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "codesage <path>",
		Short:         "AI-powered code analysis tool",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], opts, deps)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ask, "ask", "", "Question to ask about the codebase")
	flags.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "Path to an optional YAML config file")
	flags.StringVar(&opts.format, "format", FormatText, "Answer format: text or html")
	flags.IntVar(&opts.topK, "top-k", 0, "Number of chunks to retrieve (default from config)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Scan and chunk only, print the chunks and exit")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.SetOut(deps.Stdout)
	cmd.SetErr(deps.Stderr)
	return cmd
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context, args []string, deps Deps) int {
	cmd := NewRootCommand(deps)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		helper.NewPrinter(deps.Stdout, deps.Stderr).Error(err)
		return 1
	}
	return 0
}

func ConfigureLogging(w io.Writer, verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func run(ctx context.Context, path string, opts *options, deps Deps) error {
	ConfigureLogging(deps.Stderr, opts.verbose)

	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: '%s' is not a valid directory", models.ErrInvalidPath, path)
	}
	if opts.format != FormatText && opts.format != FormatHTML {
		return fmt.Errorf("%w: unknown format %q", models.ErrInvalidConfig, opts.format)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.topK > 0 {
		cfg.RAG.TopK = opts.topK
	}
	log.Debug().
		Str("llm_provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Str("embedding_model", cfg.EmbedLLM.Model).
		Interface("rag", cfg.RAG).
		Dur("request_timeout", cfg.RequestTimeout).
		Msg("Loaded config")

	query := opts.ask
	if query == "" {
		query = models.DefaultQuery
	}

	p := helper.NewPrinter(deps.Stdout, deps.Stderr)
	p.Banner()

	p.Section("Scanning project")
	files, err := scanner.Scan(ctx, path, scanner.OptionsFromConfig(&cfg.RAG))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w in %s", models.ErrEmptyScan, path)
	}
	p.Status("Found %d source files", len(files))

	p.Section("Chunking code")
	c, err := chunker.New(&cfg.RAG)
	if err != nil {
		return err
	}
	chunks, err := c.ChunkFiles(files)
	if err != nil {
		return err
	}
	p.Status("Created %d chunks", len(chunks))

	if opts.dryRun {
		helper.PrettyPrint(p.Out(), chunks)
		return nil
	}

	p.Section("Building vector index")
	embedder, err := deps.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	progress := helper.NewProgress(deps.Stdout, "embedding")
	embedOpts := embedding.OptionsFromConfig(cfg)
	embedOpts.Progress = progress.Add
	progress.Start(len(chunks))
	db, err := rag.BuildIndex(ctx, embedder, chunks, embedOpts)
	progress.Finish()
	if err != nil {
		return err
	}
	p.Status("Vector index ready (%d vectors)", db.Count())
	defer func() {
		if err := db.DeleteCollection(); err != nil {
			log.Warn().Err(err).Msg("Failed to drop vector collection")
		}
	}()

	p.Section("Running analysis")
	p.Status("Query: %s", query)
	llm, err := deps.NewLLM(cfg)
	if err != nil {
		return err
	}
	answer, err := rag.NewRAG(db, embedder, llm, cfg).Query(ctx, query)
	if err != nil {
		return err
	}
	p.Status("Context from %d files", len(answer.Sources))
	if cached, ok := embedder.(*embedding.CachedEmbedder); ok {
		log.Debug().Int("cached_vectors", cached.Len()).Msg("Embedding cache")
	}

	p.Section("Result")
	if opts.format == FormatHTML {
		html, err := helper.RenderHTML(answer.Content)
		if err != nil {
			return err
		}
		p.Result(html)
		return nil
	}
	p.Result(answer.Content)
	return nil
}
