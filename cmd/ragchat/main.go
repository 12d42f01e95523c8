package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/0xcro3dile/ragchat-go/internal/adapters/convstore"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/embedding"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/llm"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/loader"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/parser"
	"github.com/0xcro3dile/ragchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragchat-go/internal/config"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/ragchat-go/internal/infrastructure/http"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/tui"
	"github.com/0xcro3dile/ragchat-go/internal/observability"
)

const usage = `Usage: ragchat [flags] <command>

Commands:
  ingest <path>...   load documents into the knowledge base
  chat [id]          interactive chat (resumes conversation id if given)
  serve              run the HTTP API server
  watch              watch a directory and auto-ingest changes

Flags:
  --config path      YAML config file (default: ./ragchat.yaml, then
                     ~/.config/ragchat/config.yaml)
  --log-level level  debug | info | warn | error
  --log-format fmt   text | json
`

// app bundles the wired components shared by all subcommands.
type app struct {
	cfg           *config.AppConfig
	index         ports.VectorIndex
	ingest        *usecases.IngestUseCase
	query         *usecases.QueryUseCase
	assistant     *usecases.Assistant
	conversations *usecases.ConversationManager
}

func main() {
	_ = godotenv.Load()

	var (
		cfgPath   string
		logLevel  string
		logFormat string
	)
	flag.StringVar(&cfgPath, "config", "", "path to YAML config file")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.StringVar(&logFormat, "log-format", "text", "log format")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	observability.Setup(logLevel, logFormat)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		slog.Error("loading config", "err", err)
		os.Exit(1)
	}

	a, err := buildApp(cfg)
	if err != nil {
		slog.Error("assembling components", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "ingest":
		err = runIngest(ctx, a, args[1:])
	case "chat":
		err = runChat(a, args[1:])
	case "serve":
		err = runServe(ctx, a)
	case "watch":
		err = runWatch(ctx, a)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", "command", args[0], "err", err)
		os.Exit(1)
	}
}

func buildApp(cfg *config.AppConfig) (*app, error) {
	embedder := embedding.NewOllamaAdapter(cfg.Embedding.BaseURL, cfg.Embedding.Model)
	generator := llm.NewOllamaLLMAdapter(cfg.LLM.BaseURL, cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSecs)*time.Second)

	metric, err := vectordb.ParseMetric(cfg.Storage.DistanceMetric)
	if err != nil {
		return nil, err
	}

	var index ports.VectorIndex
	switch cfg.Storage.Backend {
	case "sqlite":
		index, err = vectordb.NewSQLiteStore(embedder, cfg.Storage.Dir, cfg.Storage.Collection, metric)
	default:
		index, err = vectordb.NewSnapshotStore(embedder, cfg.Storage.Dir, cfg.Storage.Collection, metric)
	}
	if err != nil {
		return nil, err
	}

	store, err := convstore.NewFileStore(cfg.Conversation.StorageDir)
	if err != nil {
		return nil, err
	}

	docs := loader.NewMultiLoader(parser.NewHTMLParser())
	ingest := usecases.NewIngestUseCase(docs, index, cfg.Chunk.Size, cfg.Chunk.Overlap)
	retriever := usecases.NewRetriever(index, cfg.Retrieval.TopK)
	query := usecases.NewQueryUseCase(retriever, generator)
	conversations := usecases.NewConversationManager(store,
		cfg.Conversation.MaxTurns, cfg.Conversation.AutoSave, cfg.Conversation.SaveInterval)
	contexts := usecases.NewContextManager(generator,
		cfg.Context.MaxTurns, cfg.Context.Format, cfg.Context.IncludeTimestamps,
		cfg.Context.CompressionMethod, cfg.Context.SummaryInterval)
	assistant := usecases.NewAssistant(conversations, contexts, retriever, generator)

	return &app{
		cfg:           cfg,
		index:         index,
		ingest:        ingest,
		query:         query,
		assistant:     assistant,
		conversations: conversations,
	}, nil
}

func runIngest(ctx context.Context, a *app, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("ingest needs at least one path")
	}
	files, err := expandPaths(paths, a.cfg.Watcher.Extensions)
	if err != nil {
		return err
	}
	ids, err := a.ingest.AddDocuments(ctx, files, nil)
	if err != nil {
		return err
	}
	slog.Info("ingested documents", "files", len(files), "chunks", len(ids), "total", a.index.Count())
	return nil
}

func runChat(a *app, args []string) error {
	var id string
	if len(args) > 0 {
		id = args[0]
		if h, err := a.conversations.GetConversation(id); err != nil {
			return err
		} else if h == nil {
			return fmt.Errorf("conversation %s not found", id)
		}
	} else {
		var err error
		id, err = a.conversations.CreateConversation("")
		if err != nil {
			return err
		}
	}

	m := tui.New(a.assistant, id)
	_, err := tea.NewProgram(m).Run()
	return err
}

func runServe(ctx context.Context, a *app) error {
	srv := httpserver.NewServer(a.query, a.ingest, a.assistant, a.conversations, a.cfg.Server.Addr)
	return srv.Start(ctx)
}

func runWatch(ctx context.Context, a *app) error {
	watcher, err := filewatcher.NewFSNotifyWatcher(a.cfg.Watcher.Extensions)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	if err := os.MkdirAll(a.cfg.Watcher.Dir, 0o755); err != nil {
		return err
	}
	events, err := watcher.Watch(ctx, a.cfg.Watcher.Dir)
	if err != nil {
		return err
	}

	slog.Info("watching for documents", "dir", a.cfg.Watcher.Dir, "extensions", a.cfg.Watcher.Extensions)
	for event := range events {
		switch event.Operation {
		case ports.FileCreated, ports.FileModified:
			ids, err := a.ingest.AddDocuments(ctx, []string{event.Path}, nil)
			if err != nil {
				slog.Warn("auto-ingest failed", "path", event.Path, "err", err)
				continue
			}
			slog.Info("auto-ingested", "path", event.Path, "chunks", len(ids))
		case ports.FileDeleted:
			slog.Info("file removed, index unchanged", "path", event.Path)
		}
	}
	return nil
}

// expandPaths resolves directories to their matching files.
func expandPaths(paths, extensions []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			ext := strings.ToLower(filepath.Ext(path))
			for _, e := range extensions {
				if ext == e {
					files = append(files, path)
					break
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
