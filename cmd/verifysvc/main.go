package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	config "github.com/wwwskbjxyz/Agent-web-sub001/configs"
	nats "github.com/wwwskbjxyz/Agent-web-sub001/internal/nats"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/broker"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/db"
	handlers "github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/handlers"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/monitoring"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/service"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/store"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "verify"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	ctx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()

	attemptStore := store.NewAttemptStore(dbpool)
	linkStore := store.NewLinkStore(dbpool)
	cardStore := store.NewCardStore(dbpool)
	bindingStore := store.NewBindingStore(dbpool)

	for name, ensure := range map[string]func(context.Context) error{
		"card_verification_log": attemptStore.EnsureSchema,
		"lanzou_links":          linkStore.EnsureSchema,
		"cards":                 cardStore.EnsureSchema,
		"software_bindings":     bindingStore.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			log.Fatalf("Failed to ensure schema for %s: %v", name, err)
		}
	}

	metrics := monitoring.NewMetrics()

	// optional redis read-through cache for the link pool
	var catalog service.LinkCatalog = linkStore
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL value: %v", err)
		}
		catalog = store.NewCachedLinkStore(linkStore, redis.NewClient(opts), 0, metrics)
		log.Printf("redis link cache enabled")
	}

	// optional NATS attempt event publisher and instance heartbeat
	var publisher service.AttemptPublisher
	var b *broker.Broker
	n, err := nats.Connect()
	if err != nil {
		log.Warnf("NATS unavailable, attempt events will not be published: %v", err)
	} else {
		defer n.Conn.Close()
		b = broker.NewBroker(n.Conn)
		publisher = b
		log.Printf("NATS connection established successfully %s", n.Url)
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	if b != nil {
		go b.StartHeartbeat(heartbeatCtx, instanceId, 15*time.Second)
	}

	verificationService := service.NewVerificationService(
		cardStore, catalog, attemptStore, service.NewLinkSelector(nil), publisher, metrics)
	auditService := service.NewAuditService(attemptStore, linkStore)
	bindingService := service.NewBindingService(bindingStore)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(verificationService, auditService, bindingService, metrics)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("VERIFY_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	stopHeartbeat()
	if b != nil {
		b.PublishShutdown(instanceId)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
