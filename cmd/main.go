package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-agent/internal/chunker"
	"document-agent/internal/config"
	"document-agent/internal/helper"
	"document-agent/internal/parser"
	"document-agent/internal/rag"
	"document-agent/internal/server"
	"document-agent/internal/tui"
	"document-agent/internal/watcher"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document file (defaults to document.path from the config)")
	query := flag.String("query", "", "Question to answer, then exit")
	topK := flag.Int("top-k", 0, "Number of chunks to retrieve (defaults to rag.top_k from the config)")
	serve := flag.Bool("serve", false, "Start the HTTP API")
	dryRun := flag.Bool("dry-run", false, "Print the chunks without embedding them")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, using info")
	}

	path := *filePath
	if path == "" {
		path = cfg.Document.Path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *dryRun:
		err = printChunks(path, cfg)
	case *serve:
		err = runServer(ctx, path, cfg)
	default:
		err = runCLI(ctx, path, *query, *topK, cfg)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Document assistant failed")
	}
}

func printChunks(path string, cfg *config.Config) error {
	text, err := parser.NewLoader().Load(path)
	if err != nil {
		return err
	}
	splitter, err := chunker.New(cfg.RAG)
	if err != nil {
		return err
	}
	chunks, err := splitter.Split(text)
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Int("chunks", len(chunks)).Msg("Parsed document")
	return helper.PrettyPrint(os.Stdout, chunks)
}

func runCLI(ctx context.Context, path, query string, topK int, cfg *config.Config) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("document not found at %s: %w", path, err)
	}

	log.Info().Msg("Initializing Document Assistant...")
	shared, err := rag.NewShared(cfg)
	if err != nil {
		return err
	}
	defer shared.Close()

	processor, err := rag.NewProcessor(ctx, cfg, shared)
	if err != nil {
		return err
	}
	defer processor.Close()

	if _, err := processor.Ingest(ctx, path); err != nil {
		return err
	}

	if query != "" {
		answer, err := processor.AnswerQuestion(ctx, query, topK)
		if err != nil {
			return err
		}
		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", answer.Question)

		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		for i, h := range answer.Hits {
			fmt.Printf("[%d] (score %.3f) %s\n", h.Position, h.Score, answer.Context[i])
		}
		fmt.Println()

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", answer.Text)
		return nil
	}

	// keep log lines from drawing over the TUI
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	m := tui.New(ctx, processor, filepath.Base(path), topK)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func runServer(ctx context.Context, path string, cfg *config.Config) error {
	if err := helper.EnsureDir(cfg.Server.UploadDir); err != nil {
		return err
	}
	shared, err := rag.NewShared(cfg)
	if err != nil {
		return err
	}
	defer shared.Close()

	srv := server.NewServer(&cfg.Server, func(ctx context.Context) (*rag.DocumentProcessor, error) {
		return rag.NewProcessor(ctx, cfg, shared)
	})

	if _, err := os.Stat(path); err == nil {
		if _, err := srv.Load(ctx, path, filepath.Base(path)); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not load startup document")
		}
		if cfg.Document.Watch {
			w, err := watcher.New(path, func(p string) {
				if _, err := srv.Load(ctx, p, filepath.Base(p)); err != nil {
					log.Error().Err(err).Str("path", p).Msg("Failed to reload document")
				}
			})
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
		}
	} else {
		log.Warn().Str("path", path).Msg("Startup document not found, waiting for an upload")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
