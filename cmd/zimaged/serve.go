package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wenc23/zimagetool/internal/config"
	"github.com/wenc23/zimagetool/internal/console"
	"github.com/wenc23/zimagetool/internal/gallery"
	"github.com/wenc23/zimagetool/internal/httpapi"
	"github.com/wenc23/zimagetool/internal/jobs"
	"github.com/wenc23/zimagetool/internal/logging"
	"github.com/wenc23/zimagetool/internal/manager"
	"github.com/wenc23/zimagetool/internal/pipeline"
	"github.com/wenc23/zimagetool/internal/profile"
	"github.com/wenc23/zimagetool/internal/registry"
	"github.com/wenc23/zimagetool/internal/rewrite"
	"github.com/wenc23/zimagetool/pkg/types"
)

type serveFlags struct {
	addr        string
	modelPath   string
	modelsDir   string
	galleryDir  string
	workerURL   string
	workerBin   string
	profile     string
	corsOrigins string
	loadOnStart bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(root, f, cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, f.loadOnStart, cmd.ErrOrStderr())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :5000")
	fl.StringVar(&f.modelPath, "model-path", "", "default model folder")
	fl.StringVar(&f.modelsDir, "models-dir", "", "directory scanned for model folders")
	fl.StringVar(&f.galleryDir, "gallery-dir", "", "directory receiving generated images")
	fl.StringVar(&f.workerURL, "worker-url", "", "attach to a running diffusion worker")
	fl.StringVar(&f.workerBin, "worker-bin", "", "diffusion worker executable to spawn")
	fl.StringVar(&f.profile, "optimization-mode", "", "default resource profile (balanced or minimal)")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "comma separated allowed origins; enables CORS")
	fl.BoolVar(&f.loadOnStart, "load", false, "load the default model before serving")
	return cmd
}

// loadServeConfig layers defaults, the config file, .env, the environment and
// flags, in that order.
func loadServeConfig(root *rootOptions, f *serveFlags, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if root.configPath != "" {
		var err error
		if cfg, err = config.Load(root.configPath); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.Getenv)

	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("addr", &cfg.Addr, f.addr)
	set("model-path", &cfg.ModelPath, f.modelPath)
	set("models-dir", &cfg.ModelsDir, f.modelsDir)
	set("gallery-dir", &cfg.GalleryDir, f.galleryDir)
	set("worker-url", &cfg.Worker.URL, f.workerURL)
	set("worker-bin", &cfg.Worker.Bin, f.workerBin)
	set("optimization-mode", &cfg.DefaultProfile, f.profile)
	if cmd.Flags().Changed("cors-origins") {
		cfg.HTTP.CORSOrigins = splitCSV(f.corsOrigins)
		cfg.HTTP.CORSEnabled = len(cfg.HTTP.CORSOrigins) > 0
	}
	if root.logLevel != "" {
		cfg.Log.Level = root.logLevel
	}
	if _, err := profile.Parse(cfg.DefaultProfile); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// daemon holds the wired components of a running server.
type daemon struct {
	log     zerolog.Logger
	console *console.Console
	handler http.Handler
}

func buildDaemon(cfg config.Config, log zerolog.Logger) (*daemon, error) {
	models, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("scan models: %w", err)
	}
	def, err := profile.Parse(cfg.DefaultProfile)
	if err != nil {
		return nil, err
	}

	loader := pipeline.NewWorkerLoader(pipeline.WorkerConfig{
		URL:          cfg.Worker.URL,
		Bin:          cfg.Worker.Bin,
		Host:         cfg.Worker.Host,
		PortStart:    cfg.Worker.PortStart,
		PortEnd:      cfg.Worker.PortEnd,
		ExtraArgs:    cfg.Worker.ExtraArgs,
		DType:        cfg.Worker.DType,
		ReadyTimeout: seconds(cfg.Worker.ReadyTimeoutSeconds),
	}, log)
	mgr := manager.New(manager.Config{
		Loader:       loader,
		OffloadDir:   cfg.OffloadDir,
		DrainTimeout: seconds(cfg.Jobs.DrainTimeoutSeconds),
		Publisher:    logPublisher{log: log.With().Str("component", "manager").Logger()},
		Logger:       log,
	})

	var backends []rewrite.Backend
	if b := rewrite.NewChatBackend(rewrite.ChatConfig{
		APIKey:      cfg.Rewrite.APIKey,
		BaseURL:     cfg.Rewrite.BaseURL,
		Model:       cfg.Rewrite.Model,
		Temperature: cfg.Rewrite.Temperature,
		MaxTokens:   cfg.Rewrite.MaxTokens,
	}); b != nil {
		backends = append(backends, b)
	}
	if cfg.Rewrite.LlamaModel != "" {
		lb, err := rewrite.NewLlamaBackend(cfg.Rewrite.LlamaModel, cfg.Rewrite.LlamaThreads, cfg.Rewrite.MaxTokens, cfg.Rewrite.Temperature)
		if err != nil {
			log.Warn().Err(err).Str("model", cfg.Rewrite.LlamaModel).Msg("local rewrite model unavailable")
		} else {
			backends = append(backends, lb)
		}
	}
	rw := rewrite.New(log, seconds(cfg.Rewrite.TimeoutSeconds), backends...)

	store, err := gallery.New(cfg.GalleryDir)
	if err != nil {
		return nil, fmt.Errorf("open gallery: %w", err)
	}
	orch := jobs.New(mgr, rw, store, jobs.Options{
		MaxActive:              cfg.Jobs.MaxActive,
		MaxConcurrentInference: cfg.Jobs.MaxConcurrentInference,
		Timeout:                seconds(cfg.Jobs.TimeoutSeconds),
		TTL:                    seconds(cfg.Jobs.TTLSeconds),
		Logger:                 log,
	})
	defaults := console.Defaults{
		Width:     cfg.DefaultWidth,
		Height:    cfg.DefaultHeight,
		Steps:     cfg.DefaultSteps,
		Filename:  cfg.DefaultFilename,
		Profile:   def,
		ModelPath: cfg.ModelPath,
	}
	con := console.New(console.Options{
		Manager:  mgr,
		Jobs:     orch,
		Gallery:  store,
		Rewriter: rw,
		Models:   models,
		Defaults: defaults,
		Logger:   log,
	})

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.HTTP.CORSEnabled, cfg.HTTP.CORSOrigins, nil, nil)

	log.Info().
		Int("models", len(models)).
		Str("gallery", store.Root()).
		Bool("remote_rewrite", rw.Remote()).
		Str("profile", def.String()).
		Msg("daemon configured")
	return &daemon{log: log, console: con, handler: httpapi.NewMux(con)}, nil
}

func serve(ctx context.Context, cfg config.Config, loadOnStart bool, logOut io.Writer) error {
	log, closer, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return err
	}
	defer closer.Close()

	d, err := buildDaemon(cfg, log)
	if err != nil {
		return err
	}
	httpapi.SetBaseContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("model", cfg.ModelPath).Msg("zimaged listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if loadOnStart {
		g.Go(func() error {
			res, _, err := d.console.Load(gctx, types.LoadRequest{})
			if err != nil {
				// the daemon stays up so the model can be loaded later
				log.Error().Err(err).Msg("initial load failed")
				return nil
			}
			log.Info().Str("profile", res.Profile).Msg(res.Message)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown")
		}
		return d.console.Close(sctx)
	})
	err = g.Wait()
	log.Info().Msg("zimaged stopped")
	return err
}

// logPublisher writes manager lifecycle events to the log.
type logPublisher struct{ log zerolog.Logger }

func (p logPublisher) Publish(e manager.Event) {
	ev := p.log.Debug().Str("event", e.Name)
	if e.ModelPath != "" {
		ev = ev.Str("model", e.ModelPath)
	}
	ev.Fields(e.Fields).Msg("model event")
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
