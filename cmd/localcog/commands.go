package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"localcog/internal/app"
	"localcog/internal/chat"
	"localcog/internal/config"
	"localcog/internal/httpapi"
	"localcog/internal/logger"
	"localcog/internal/tui"
)

func loadConfig(cmd *cli.Command) (*config.AppConfig, error) {
	if err := godotenv.Load(cmd.String("env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	if path := cmd.String("config"); path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app.App, error) {
	return app.New(ctx, cfg, logger.New(cfg.Logging))
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := httpapi.Deps{
		Models:    a.Inference,
		Chat:      a.Chat,
		Ingest:    a.Pipeline,
		Search:    a.WebSearch,
		Semantics: a.Analyzer,
		Settings:  a.Runtime,
	}
	handler := httpapi.NewHandler(deps, time.Duration(cfg.HTTP.RequestTimeoutSecs)*time.Second, a.Logger)
	srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(handler))

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ingestAction(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return errors.New("usage: localcog ingest <file> [file...]")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	total := 0
	for _, pattern := range files {
		matches, _ := filepath.Glob(pattern)
		if matches == nil {
			matches = []string{pattern}
		}
		for _, path := range matches {
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			n, err := a.Pipeline.Ingest(ctx, raw, path)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			fmt.Printf("%s: %d chunks\n", path, n)
			total += n
		}
	}
	fmt.Printf("added %d chunks, corpus now holds %d\n", total, a.Store.Len())
	return nil
}

func chatAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the terminal belongs to the UI, so logs go to a file
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.RAG.DataDir, "localcog.log")
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	session := cmd.String("session")
	if session == "" {
		session = chat.NewSessionID()
	}
	// quitting the UI cancels a request still in flight
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m := tui.New(a.Chat, tui.Options{
		Context:   ctx,
		SessionID: session,
		Models:    cmd.StringSlice("model"),
		UseRAG:    cmd.Bool("rag"),
		Tools:     cmd.StringSlice("tool"),
		Timeout:   time.Duration(cfg.HTTP.RequestTimeoutSecs) * time.Second,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func modelsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Inference.ListModels(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFAMILY\tSIZE\tMODIFIED")
	for _, m := range list.Models {
		fmt.Fprintf(w, "%s\t%s\t%.1f GB\t%s\n", m.Name, m.Details.Family, float64(m.Size)/1e9, m.ModifiedAt.Format(time.DateOnly))
	}
	return w.Flush()
}
