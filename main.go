package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fabfab/course-rag/api"
	"github.com/fabfab/course-rag/config"
	"github.com/fabfab/course-rag/embeddings"
	"github.com/fabfab/course-rag/index"
	"github.com/fabfab/course-rag/llm"
	"github.com/fabfab/course-rag/rag"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// buildSystem wires the store, model client, and facade for one command
// invocation. The returned cleanup releases the store's resources.
func buildSystem(ctx context.Context, cfg config.Config, logger *log.Logger) (*rag.System, func(), error) {
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	var (
		store   index.Store
		cleanup = func() {}
	)
	switch cfg.Store.Provider {
	case config.StorePostgres:
		pool, err := index.NewPostgresPool(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connection: %w", err)
		}
		pgStore, err := index.NewPostgresStore(ctx, pool, embedder, cfg.Embeddings.Dimension, cfg.ResolveThreshold)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres store setup: %w", err)
		}
		store = pgStore
		cleanup = pool.Close
	case config.StoreMemory:
		memStore, err := index.NewMemoryStore(embedder, cfg.ResolveThreshold)
		if err != nil {
			return nil, nil, fmt.Errorf("memory store setup: %w", err)
		}
		store = memStore
	default:
		return nil, nil, fmt.Errorf("unknown store provider %q", cfg.Store.Provider)
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}

	sys, err := rag.New(cfg, store, client, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("system setup: %w", err)
	}
	return sys, cleanup, nil
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	docsDir := flags.String("dir", cfg.DocsDir, "path to directory containing course documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sys, cleanup, err := buildSystem(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer cleanup()

	logger.Printf("ingesting course documents from %s using %s/%s embeddings", *docsDir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	courses, chunks, err := sys.AddCourseFolder(ctx, *docsDir)
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
	logger.Printf("added %d courses with %d chunks", courses, chunks)
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask about the course materials")
	session := flags.String("session", "", "session ID to continue a prior conversation")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sys, cleanup, err := buildSystem(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer cleanup()

	// An in-memory store starts empty for every process, so load the course
	// documents before answering.
	if cfg.Store.Provider == config.StoreMemory {
		if _, _, err := sys.AddCourseFolder(ctx, cfg.DocsDir); err != nil {
			logger.Fatalf("loading course documents: %v", err)
		}
	}

	answer, err := sys.Ask(ctx, *question, *session)
	if err != nil {
		logger.Fatalf("ask failed: %v", err)
	}

	fmt.Println(answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range answer.Sources {
			label := source.Course
			if source.Lesson != nil {
				label = fmt.Sprintf("%s - Lesson %d", source.Course, *source.Lesson)
			}
			if source.Link != "" {
				fmt.Printf("%d. %s (%s)\n", idx+1, label, source.Link)
			} else {
				fmt.Printf("%d. %s\n", idx+1, label)
			}
		}
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sys, cleanup, err := buildSystem(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer cleanup()

	courses, chunks, err := sys.AddCourseFolder(ctx, cfg.DocsDir)
	if err != nil {
		logger.Fatalf("loading course documents: %v", err)
	}
	logger.Printf("loaded %d new courses with %d chunks", courses, chunks)

	srv := &http.Server{
		Addr:    *addr,
		Handler: api.New(sys, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("serving course QA API on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve failed: %v", err)
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete all indexed courses. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sys, cleanup, err := buildSystem(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer cleanup()

	if err := sys.ClearIndex(ctx); err != nil {
		logger.Fatalf("clear failed: %v", err)
	}
	logger.Println("course index cleared")
}

func printUsage() {
	fmt.Println("Usage: course-rag <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Index course documents (use --dir to override the docs directory)")
	fmt.Println("  ask      Ask a question about the course materials")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  clear    Remove all indexed courses")
}
