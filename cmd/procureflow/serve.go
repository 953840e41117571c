package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"procureflow/handlers"
	"procureflow/internal/agent"
	"procureflow/internal/auth"
	"procureflow/internal/cart"
	"procureflow/internal/config"
	"procureflow/internal/consul"
	"procureflow/internal/health"
	"procureflow/internal/items"
	"procureflow/internal/outbox"
	"procureflow/internal/purchases"
	"procureflow/internal/stores/kafka"
	"procureflow/internal/stores/postgres"
	"procureflow/internal/stores/redis"
	"procureflow/internal/users"
	"procureflow/middleware"
	"procureflow/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health service and the outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.RequireJWT(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, migrate bool) error {
	gin.SetMode(cfg.GinMode)

	db, err := postgres.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := postgres.Migrate(ctx, db, "up"); err != nil {
			return err
		}
	}

	keys, err := auth.NewKeys(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	userConf, err := users.NewConf(db)
	if err != nil {
		return err
	}
	itemConf, err := items.NewConf(db)
	if err != nil {
		return err
	}
	cartConf, err := cart.NewConf(db)
	if err != nil {
		return err
	}
	purchaseConf, err := purchases.NewConf(db, cfg.KafkaTopicPurchaseRequests)
	if err != nil {
		return err
	}
	itemService := items.NewService(itemConf)

	pingers := map[string]health.Pinger{"postgres": db}

	var convStore agent.Store
	if cfg.RedisURL != "" {
		rdb, err := redis.OpenClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		convStore = agent.NewRedisStore(rdb, cfg.ConversationTTL, cfg.ConversationMaxMessages)
		pingers["redis"] = redis.Pinger{Client: rdb}
		slog.Info("conversations stored in redis")
	} else {
		pgStore, err := agent.NewPostgresStore(db)
		if err != nil {
			return err
		}
		convStore = pgStore
		slog.Info("conversations stored in postgres")
	}

	var replier agent.Replier = agent.CatalogReplier{}
	if cfg.LLM.APIKey != "" {
		replier = agent.NewLLMReplier(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout)
		slog.Info("agent replies from language model", slog.String("Model", cfg.LLM.Model))
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	router, err := handlers.API(handlers.Services{
		Users:     users.NewService(userConf, keys),
		Items:     itemService,
		Cart:      cart.NewService(cartConf),
		Purchases: purchases.NewService(purchaseConf),
		Agent:     agent.NewService(convStore, itemService, replier),
		DB:        db,
	}, keys, limiter)
	if err != nil {
		return err
	}

	api := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	var relay *outbox.Relay
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewConf(cfg.KafkaBrokers, cfg.ServiceName)
		if err != nil {
			return err
		}
		defer producer.Close()
		outboxConf, err := outbox.NewConf(db)
		if err != nil {
			return err
		}
		relay = outbox.NewRelay(outboxConf, producer, cfg.OutboxPollInterval)
	} else {
		slog.Warn("KAFKA_BROKERS not set; purchase request events stay in the outbox")
	}

	if cfg.ConsulAddr != "" {
		client, err := consul.NewClient(cfg.ConsulAddr)
		if err != nil {
			return err
		}
		id, err := consul.Register(client, consul.Registration{ServiceName: cfg.ServiceName, HTTPAddr: cfg.HTTPAddr})
		if err != nil {
			// Discovery is optional; the API still serves direct traffic.
			slog.Error("consul registration failed", slog.String(logkey.ERROR, err.Error()))
		} else {
			defer func() {
				if err := consul.Deregister(client, id); err != nil {
					slog.Error("consul deregistration failed", slog.String(logkey.ERROR, err.Error()))
				}
			}()
		}
	}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.GRPCAddr, err)
	}
	healthServer := health.NewServer(cfg.ServiceName, 5*time.Second, pingers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http api listening", slog.String("Addr", cfg.HTTPAddr))
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		slog.Info("shutting down http api")
		return api.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("grpc health listening", slog.String("Addr", cfg.GRPCAddr))
		return healthServer.Serve(gctx, grpcLis)
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	if limiter != nil {
		g.Go(func() error { return limiter.Run(gctx, time.Minute) })
	}

	err = g.Wait()
	slog.Info("procureflow stopped")
	return err
}
