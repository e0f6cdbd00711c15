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

	"coralbricks/internal/api"
	"coralbricks/internal/auth"
	"coralbricks/internal/config"
	"coralbricks/internal/content"
	"coralbricks/internal/redis"
	"coralbricks/internal/service/account"
	"coralbricks/internal/service/agent"
	"coralbricks/internal/service/chat"
	"coralbricks/internal/service/contact"
	"coralbricks/internal/storage"
	"coralbricks/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CORALBRICKS_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.BasicConfig.GinMode != "" {
		gin.SetMode(cfg.BasicConfig.GinMode)
	}

	dbType := config.DatabaseDriver()
	log.Printf("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	// Create necessary tables: users, user_tokens, contact_submissions
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	var publisher contact.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := contact.NewRabbitPublisher(cfg.RabbitMQ)
		if err != nil {
			log.Printf("[contact] lead events disabled: %v", err)
		} else {
			defer rabbit.Close()
			publisher = rabbit
		}
	}

	site, err := content.Load()
	if err != nil {
		log.Fatalf("load site content: %v", err)
	}

	backend, err := agent.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init agent backend: %v", err)
	}
	log.Printf("agent backend: %s", cfg.Agent.Mode)

	manager := worker.NewManager(chat.NewService(backend, cfg.Agent.Timeout()), worker.Config{
		QueueLength: cfg.BasicConfig.ChatQueueLength,
		IdleTimeout: cfg.BasicConfig.SessionIdle(),
		Cache:       rdb,
	})
	defer manager.Stop()

	handlers, err := api.NewHandler(api.Options{
		Site:           site,
		Accounts:       account.NewService(db),
		Auth:           auth.NewService(db, rdb, cfg.BasicConfig.TokenTTL()),
		Chat:           manager,
		Contact:        contact.NewService(db, cfg.Contact, publisher),
		AllowedOrigins: cfg.BasicConfig.AllowedOrigins,
	})
	if err != nil {
		log.Fatalf("init handlers: %v", err)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Printf("%s listening on %s", site.Brand, srv.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
