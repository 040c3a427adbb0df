package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VincentBerthier/bifrost/app/services/ledger/handlers"
	"github.com/VincentBerthier/bifrost/foundation/events"
	"github.com/VincentBerthier/bifrost/foundation/ledger/genesis"
	"github.com/VincentBerthier/bifrost/foundation/ledger/pipeline"
	"github.com/VincentBerthier/bifrost/foundation/ledger/state"
	"github.com/VincentBerthier/bifrost/foundation/logger"
	"github.com/VincentBerthier/bifrost/foundation/nameservice"
	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("LEDGER")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			StatusHost      string        `conf:"default:0.0.0.0:8080"`
		}
		State struct {
			DBPath           string        `conf:"default:zledger/accounts.db"`
			Capacity         int64         `conf:"default:67108864"`
			GenesisPath      string        `conf:"default:zledger/genesis.json"`
			Inbox            string        `conf:"default:zledger/inbox"`
			PollInterval     time.Duration `conf:"default:100ms"`
			Workers          int           `conf:"default:0"`
			Shards           int           `conf:"default:16"`
			QueueDepth       int           `conf:"default:1024"`
			VerifyBatch      int           `conf:"default:64"`
			AdmissionTimeout time.Duration `conf:"default:0s"`
		}
		NameService struct {
			Folder string `conf:"default:zledger/keys/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "bifrost account ledger",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "LEDGER"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The names come from the key files found in the configured folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// =========================================================================
	// Ledger Support

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	if err := os.MkdirAll(cfg.State.Inbox, 0o755); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	// The ledger packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	engine, err := state.New(state.Config{
		DBPath:   cfg.State.DBPath,
		Capacity: cfg.State.Capacity,
		Genesis:  gen,
		Pipeline: pipeline.Config{
			Workers:          cfg.State.Workers,
			Shards:           cfg.State.Shards,
			QueueDepth:       cfg.State.QueueDepth,
			VerifyBatch:      cfg.State.VerifyBatch,
			AdmissionTimeout: cfg.State.AdmissionTimeout,
		},
		Inbox:        cfg.State.Inbox,
		PollInterval: cfg.State.PollInterval,
		EvHandler:    ev,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Shutdown(); err != nil {
			log.Errorw("shutdown", "status", "engine", "ERROR", err)
		}
	}()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	debugMux := handlers.DebugMux(build, log, engine)

	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Status Service

	log.Infow("startup", "status", "initializing V1 status API support")

	statusMux := handlers.StatusMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Engine:   engine,
		NS:       ns,
		Evts:     evts,
	})

	status := http.Server{
		Addr:         cfg.Web.StatusHost,
		Handler:      statusMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "status api router started", "host", status.Addr)
		serverErrors <- status.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		log.Infow("shutdown", "status", "shutdown status API started")
		if err := status.Shutdown(ctx); err != nil {
			status.Close()
			return fmt.Errorf("could not stop status service gracefully: %w", err)
		}
	}

	return nil
}
