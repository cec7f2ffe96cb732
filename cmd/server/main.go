package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
	"github.com/suPer8Hu/prompt-playground/internal/chat"
	"github.com/suPer8Hu/prompt-playground/internal/config"
	"github.com/suPer8Hu/prompt-playground/internal/db"
	"github.com/suPer8Hu/prompt-playground/internal/gateway"
	"github.com/suPer8Hu/prompt-playground/internal/httpapi"
	"github.com/suPer8Hu/prompt-playground/internal/httpapi/handlers"
	"github.com/suPer8Hu/prompt-playground/internal/runlog"
	"github.com/suPer8Hu/prompt-playground/internal/secret"
	"github.com/suPer8Hu/prompt-playground/internal/store/gormstore"
	"github.com/suPer8Hu/prompt-playground/internal/store/memstore"
	"github.com/suPer8Hu/prompt-playground/internal/store/rabbitmq"
	"github.com/suPer8Hu/prompt-playground/internal/store/redisstore"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := ai.DefaultCatalog()
	if cfg.ModelCatalogPath != "" {
		c, err := ai.LoadCatalogFile(cfg.ModelCatalogPath)
		if err != nil {
			log.Fatalf("model catalog: %v", err)
		}
		catalog = c
	}

	// SQL backs the run log and, for sqlite/mysql, the session snapshot.
	var gdb *gorm.DB
	if cfg.RunLogEnabled || cfg.StateBackend == "sqlite" || cfg.StateBackend == "mysql" {
		if cfg.StateBackend == "mysql" && cfg.DBDSN == "" {
			log.Fatalf("STATE_BACKEND=mysql requires DB_DSN")
		}
		var err error
		gdb, err = db.Connect(cfg.DBDSN, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
	}

	var persister chat.Persister
	switch cfg.StateBackend {
	case "sqlite", "mysql":
		gs := gormstore.New(gdb, cfg.StateKey)
		if err := gs.AutoMigrate(); err != nil {
			log.Fatalf("automigrate state: %v", err)
		}
		persister = gs
	case "redis":
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StateKey)
		if err := rs.Ping(ctx); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rs.Close()
		persister = rs
	case "memory":
		persister = memstore.New()
	default:
		log.Fatalf("unsupported STATE_BACKEND=%q", cfg.StateBackend)
	}

	sealer, err := secret.NewSealer(cfg.StateSecret)
	if err != nil {
		log.Fatalf("state secret: %v", err)
	}
	store := chat.OpenStore(ctx, catalog, persister, chat.WithSealer(sealer))

	// Provider gateway: in process unless a remote one is configured.
	var (
		gwSvc *gateway.Service
		gw    chat.Gateway
	)
	if cfg.GatewayURL != "" {
		client := gateway.NewClient(cfg.GatewayURL)
		client.Token = cfg.GatewayToken
		gw = client
		log.Printf("[server] using remote gateway url=%s", cfg.GatewayURL)
	} else {
		reg := ai.NewRegistry()
		ai.RegisterBuiltins(reg, ai.Endpoints{
			OpenAIBaseURL:    cfg.OpenAIBaseURL,
			AnthropicBaseURL: cfg.AnthropicBaseURL,
			AnthropicVersion: cfg.AnthropicVersion,
		})
		gwSvc = gateway.NewService(reg, catalog)
		gw = gwSvc
	}

	var (
		runs *runlog.Repo
		opts []chat.TransportOption
	)
	if cfg.RunLogEnabled {
		runs = runlog.NewRepo(gdb)
		if err := runs.AutoMigrate(); err != nil {
			log.Fatalf("automigrate runs: %v", err)
		}
		if cfg.RabbitURL != "" {
			pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
			if err != nil {
				log.Fatalf("rabbit publisher: %v", err)
			}
			defer pub.Close()
			opts = append(opts, chat.WithRunRecorder(pub))
		} else {
			opts = append(opts, chat.WithRunRecorder(runs))
		}
	}

	h := &handlers.Handler{
		Cfg:       cfg,
		Store:     store,
		Transport: chat.NewTransport(store, gw, opts...),
		Gateway:   gwSvc,
		Runs:      runs,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[server] listening addr=%s backend=%s", cfg.HTTPAddr, cfg.StateBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[server] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}
