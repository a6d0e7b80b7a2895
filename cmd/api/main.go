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
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/email"
	accounthandler "github.com/jwalitptl/clinic-api/internal/handler/account"
	authhandler "github.com/jwalitptl/clinic-api/internal/handler/auth"
	drughandler "github.com/jwalitptl/clinic-api/internal/handler/drug"
	"github.com/jwalitptl/clinic-api/internal/handler/health"
	reviewhandler "github.com/jwalitptl/clinic-api/internal/handler/review"
	visithandler "github.com/jwalitptl/clinic-api/internal/handler/visit"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	mongorepo "github.com/jwalitptl/clinic-api/internal/repository/mongo"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/router"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	accountsvc "github.com/jwalitptl/clinic-api/internal/service/account"
	authsvc "github.com/jwalitptl/clinic-api/internal/service/auth"
	drugsvc "github.com/jwalitptl/clinic-api/internal/service/drug"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	"github.com/jwalitptl/clinic-api/internal/service/otp"
	"github.com/jwalitptl/clinic-api/internal/service/password"
	reviewsvc "github.com/jwalitptl/clinic-api/internal/service/review"
	visitsvc "github.com/jwalitptl/clinic-api/internal/service/visit"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	appLogger := logger.Setup(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	mongoClient, err := mongorepo.Connect(ctx, cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongo")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	mongoDB := mongoClient.Database(cfg.Mongo.Database)
	if err := mongorepo.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatal().Err(err).Msg("failed to create mongo indexes")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	loc, err := cfg.Booking.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid booking timezone")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.New()

	// Initialize repositories
	accountRepo := postgres.NewAccountRepository(db)
	credentialRepo := postgres.NewCredentialRepository(db)
	visitRepo := postgres.NewVisitRepository(db)
	reviewRepo := postgres.NewReviewRepository(db)
	drugRepo := mongorepo.NewDrugRepository(mongoDB, clk)

	// Initialize services
	issuer, err := auth.NewJWTIssuer(cfg.JWT.Secret, cfg.JWT.Expiry, clk.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session issuer")
	}
	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	mail := email.NewService(email.NewSender(cfg.Email, appLogger))

	authService := authsvc.NewService(
		accountRepo,
		otp.NewService(credentialRepo, hasher, notification.NewLogSMSSender(appLogger), clk, m, cfg.Auth.OTPExpiry),
		password.NewService(credentialRepo, hasher, clk, m, cfg.Auth.ResetTokenExpiry, cfg.Auth.VerifyTokenExpiry),
		issuer, mail, clk, m,
		cfg.Auth.OTPResendCooldown,
		cfg.Server.BaseURL,
	)
	calc := schedule.NewCalculator(cfg.Booking.SlotMinutes, loc)
	visitService := visitsvc.NewService(visitRepo, accountRepo, calc, clk, m, cfg.Booking.HorizonDays)
	accountService := accountsvc.NewService(accountRepo, reviewRepo, clk)
	reviewService := reviewsvc.NewService(reviewRepo, visitRepo, accountRepo, clk)
	drugService := drugsvc.NewService(drugRepo, clk)

	// Initialize handlers
	authMW := middleware.NewAuthMiddleware(authService, cfg.JWT.CookieName)
	cookie := authhandler.CookieConfig{
		Name:       cfg.JWT.CookieName,
		ExpiryDays: cfg.JWT.CookieExpiryDays,
		Secure:     cfg.JWT.CookieSecure,
	}
	healthHandler := health.NewHandler(reg,
		health.Check{Name: "postgres", Ping: db.PingContext},
		health.Check{Name: "mongo", Ping: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }},
		health.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	routerConfig := router.Config{
		Development:    !cfg.IsProduction(),
		BodyLimit:      cfg.Server.BodyLimit,
		AuthPerMinute:  cfg.RateLimit.AuthPerMinute,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}
	r := router.NewRouter(routerConfig, middleware.NewHTTPMetrics(reg))
	r.Setup(
		healthHandler,
		authhandler.NewHandler(authService, authMW, cookie),
		accounthandler.NewHandler(accountService, authMW, cfg.JWT.CookieName),
		visithandler.NewHandler(visitService, authMW, loc),
		reviewhandler.NewHandler(reviewService, authMW),
		drughandler.NewHandler(drugService, authMW),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Environment).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
