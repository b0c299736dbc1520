package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/config"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/s3"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/db"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/events"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/handlers"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/services"
	"github.com/visioninhope/tiledesk-whatsapp-connector/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var (
	newTest = flag.String("newtest", "", "create a bot test session (project_id:bot_id), print its QR code and exit")
	phone   = flag.String("phone", "", "WhatsApp business number the test link points to")
)

func main() {
	flag.Parse()
	logger.InitLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.InitLogger(cfg.LogLevel, cfg.LogFormat)

	var ephemeral services.EphemeralStore
	var redisStore *db.RedisStore
	if cfg.RedisEnabled() {
		redisStore = db.NewRedisStore(cfg.RedisAddr(), cfg.RedisPassword)
		if err := redisStore.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr()).Msg("Redis not reachable, bot testing may fail")
		}
		ephemeral = redisStore
	} else {
		log.Warn().Msg("Redis not configured, bot testing disabled")
	}

	publisher := events.NewPublisher(cfg)

	if *newTest != "" {
		os.Exit(runNewTest(services.NewRegistrar(ephemeral, publisher), *newTest, *phone))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := db.Open(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open settings store")
	}

	waClient, err := whatsapp.NewClient(cfg.GraphURL, cfg.SendTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize WhatsApp client")
	}
	tdClient, err := tiledesk.NewClient(cfg.APIURL, cfg.SendTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Tiledesk client")
	}

	var objects services.ObjectUploader
	if cfg.S3.Enabled() {
		manager, err := s3.NewManager(cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 media hosting")
		}
		objects = manager
	}

	media := services.NewMediaRelay(waClient, tdClient, objects, cfg.MediaTmpDir)
	sequencer := services.NewSequencer(waClient, publisher, cfg.SendTimeout, cfg.MaxCommandWait)
	registrar := services.NewRegistrar(ephemeral, publisher)
	tester := services.NewBotTester(registrar, store, tdClient, publisher)

	h := handlers.New(handlers.Deps{
		Config:    cfg,
		Settings:  store,
		Whatsapp:  waClient,
		Tiledesk:  tdClient,
		Media:     media,
		Sequencer: sequencer,
		Registrar: registrar,
		Tester:    tester,
		Publisher: publisher,
	})

	router := mux.NewRouter()
	h.Routes(router)

	chain := alice.New(
		hlog.NewHandler(log.Logger),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("")
		}),
		hlog.RemoteAddrHandler("ip"),
		hlog.RequestIDHandler("req_id", "Request-Id"),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           chain.Then(router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("baseURL", cfg.BaseURL).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := sequencer.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("running", len(sequencer.Running())).Msg("Command sequences still running at shutdown")
	}
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close event publisher")
	}
	if redisStore != nil {
		_ = redisStore.Close()
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to close settings store")
	}
	log.Info().Msg("Shutdown complete")
}

// runNewTest creates a test session from a project_id:bot_id pair and prints the
// link a tester scans to open it.
func runNewTest(registrar *services.Registrar, pair, phone string) int {
	projectID, botID, ok := strings.Cut(pair, ":")
	if !ok || projectID == "" || botID == "" {
		fmt.Fprintln(os.Stderr, "-newtest expects project_id:bot_id")
		return 2
	}
	if phone == "" {
		fmt.Fprintln(os.Stderr, "-phone is required with -newtest")
		return 2
	}

	shortID, err := registrar.Create(context.Background(), projectID, botID)
	if err != nil {
		log.Error().Err(err).Msg("Unable to create test session")
		return 1
	}

	link := services.TestLink(phone, shortID)
	fmt.Println(link)
	qrterminal.GenerateHalfBlock(link, qrterminal.L, os.Stdout)
	return 0
}
