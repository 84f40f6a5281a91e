package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"authgate.org/internal/authz"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/mail"
	"authgate.org/internal/obs"
	"authgate.org/internal/otp"
	"authgate.org/internal/store/mem"
	"authgate.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("AUTHGATE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("AUTHGATE_AUTH_SECRET is required")
	}

	normalizer := authz.NewNormalizer()
	// Metric path labels reuse the same normalization to bound cardinality.
	obs.SetCanonicalPath(normalizer.Normalize)

	var tokenOpts []authz.TokenOption
	if ttl := durationEnv("AUTHGATE_TOKEN_TTL"); ttl > 0 {
		tokenOpts = append(tokenOpts, authz.WithTokenTTL(ttl))
	}
	tokens, err := authz.NewTokenService(secret, tokenOpts...)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	// Credential store: Postgres when a DSN is configured, in-memory
	// otherwise (dev mode).
	var (
		store authz.Store
		db    *sql.DB
	)
	if dsn := os.Getenv("AUTHGATE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		db = pgStore.DB()
	} else {
		log.Print("AUTHGATE_PG_DSN not set, using in-memory store")
		store = mem.New()
	}

	// OTP cache: Redis when an address is configured, in-memory otherwise.
	var cache otp.Cache
	if addr := os.Getenv("AUTHGATE_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		cache = otp.NewRedisCache(client)
	} else {
		log.Print("AUTHGATE_REDIS_ADDR not set, using in-memory otp cache")
		cache = otp.NewMemoryCache()
	}
	var otpOpts []otp.Option
	if n := intEnv("AUTHGATE_OTP_LENGTH"); n > 0 {
		otpOpts = append(otpOpts, otp.WithCodeLength(n))
	}
	if ttl := durationEnv("AUTHGATE_OTP_TTL"); ttl > 0 {
		otpOpts = append(otpOpts, otp.WithTTL(ttl))
	}
	otpStore, err := otp.NewStore(cache, otpOpts...)
	if err != nil {
		log.Fatalf("otp store: %v", err)
	}

	var mailClient *mail.Client
	if url := os.Getenv("AUTHGATE_NOTIFY_URL"); url != "" {
		mailClient, err = mail.NewClient(url)
		if err != nil {
			log.Fatalf("mail client: %v", err)
		}
	}

	engine := authz.NewEngine(tokens, store,
		authz.WithNormalizer(normalizer),
		authz.WithTracker(authz.NewTracker(store)),
	)
	rbac, err := authz.NewRBACService(store, normalizer)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Version:   version,
		Ready:     httpapi.ReadyProbe{DB: db},
		Engine:    engine,
		Login:     authz.NewLoginService(store, tokens),
		Federated: authz.NewFederatedLogin(store, tokens),
		RBAC:      rbac,
		OTP:       otpStore,
		Mail:      mailClient,
	})

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, 50, 25)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	addr := os.Getenv("AUTHGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func durationEnv(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return d
}

func intEnv(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return n
}
