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

	"github.com/gin-gonic/gin"
	"lottery-server-go/config"
	"lottery-server-go/db"
	"lottery-server-go/handlers"
	"lottery-server-go/lottery"
	"lottery-server-go/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local state is required; shared sync is optional.
	store, err := db.OpenSQLite(cfg.StatePath)
	if err != nil {
		log.Fatalf("Failed to open local state: %v", err)
	}
	defer store.Close()

	var redisService *db.RedisService
	redisClient, err := db.InitializeRedisClient(cfg.Redis())
	if err != nil {
		log.Printf("Running without shared sync: %v", err)
	} else {
		defer redisClient.Close()
		redisService = db.NewRedisService(redisClient, cfg.RedisKey)
	}

	hub := web.NewHub()
	go hub.Run(ctx)

	opts, err := cfg.LotteryOptions()
	if err != nil {
		log.Fatalf("Invalid lottery options: %v", err)
	}
	opts.Store = store
	opts.Presenter = hub
	if redisService != nil {
		opts.Sync = redisService
	}
	l := lottery.New(opts)
	log.Printf("Using %s stage set", l.Policy().Name())

	if err := l.Restore(ctx); err != nil {
		log.Printf("Error restoring state, starting empty: %v", err)
	}
	loadRoster(ctx, l, cfg.RosterFile, redisService)

	if redisService != nil {
		go followRemote(ctx, redisService, l)
	}

	// Initialize Gin router
	router := gin.Default()
	handlers.NewAPIHandler(l, hub).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	log.Printf("Starting server on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to run server: %v", err)
	}
	log.Println("Server stopped")
}

// loadRoster imports the configured workbook when it exists. Without one,
// an empty session takes the roster mirrored by another device, and failing
// that the built-in headcount table is used.
func loadRoster(ctx context.Context, l *lottery.Lottery, path string, shared *db.RedisService) {
	if path != "" {
		res, err := l.ImportFile(ctx, path)
		switch {
		case err == nil:
			log.Printf("Loaded roster %s: %d students in %d classes", path, res.Students, len(res.Classes))
			return
		case lottery.IsMissingFile(err):
			log.Printf("Roster file %s not found", path)
		default:
			log.Printf("Error loading roster %s: %v", path, err)
		}
	}
	if l.State().Imported > 0 {
		return
	}
	if shared != nil {
		students, err := shared.LoadRoster()
		if err != nil {
			log.Printf("Error reading shared roster: %v", err)
		} else if len(students) > 0 {
			l.UseRoster(ctx, students)
			log.Printf("Using roster shared by another device: %d students", len(students))
			return
		}
	}
	log.Println("No roster imported, using the default headcount table")
}

// followRemote applies snapshots pushed by other devices, resubscribing after
// connection loss.
func followRemote(ctx context.Context, s *db.RedisService, l *lottery.Lottery) {
	for ctx.Err() == nil {
		sub, err := s.Subscribe(ctx)
		if err != nil {
			log.Printf("Shared sync subscription failed: %v", err)
		} else {
			log.Println("Listening for shared winner updates")
			err = sub.Run(ctx, l.ApplyRemote)
			sub.Close()
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Shared sync subscription ended: %v", err)
			}
		}
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}
}
