package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/MrEthical07/phoneAuth/internal/config"
	"github.com/MrEthical07/phoneAuth/internal/httpapi"
	otelexport "github.com/MrEthical07/phoneAuth/metrics/export/otel"
	promexport "github.com/MrEthical07/phoneAuth/metrics/export/prometheus"
	"github.com/MrEthical07/phoneAuth/otp"
	"github.com/MrEthical07/phoneAuth/sms"
	"github.com/MrEthical07/phoneAuth/storage/postgres"
	"github.com/MrEthical07/phoneAuth/userstore"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// app owns every long-lived dependency of the server.
type app struct {
	engine  *phoneAuth.Engine
	handler http.Handler
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	b := phoneAuth.New().WithConfig(engineCfg).WithLogger(logger)

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.WithRedis(rdb)
	}

	var pg *postgres.Storage
	if cfg.OTPStore == "postgres" || cfg.UserStore == "postgres" {
		if cfg.AutoMigrate {
			if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		pg, err = postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
	}

	switch cfg.OTPStore {
	case "redis":
		b.WithOTPStore(otp.NewRedisStore(rdb, engineCfg.OTP.RedisPrefix))
	case "postgres":
		b.WithOTPStore(pg.OTP())
	default:
		b.WithOTPStore(otp.NewMemoryStore())
	}

	if cfg.UserStore == "postgres" {
		b.WithUserProvider(pg)
	} else {
		b.WithUserProvider(userstore.NewMemory())
	}

	if cfg.SMSProvider == "smslocal" {
		b.WithSMSSender(sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender))
	} else {
		b.WithSMSSender(sms.LogSender{Logger: logger})
	}

	if cfg.AuditEnabled {
		b.WithAuditSink(phoneAuth.NewJSONWriterSink(os.Stdout))
	}

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promexport.NewPrometheusExporter(engine).Handler()
		if cfg.OTLPEndpoint != "" {
			if err := a.startOTLP(ctx, cfg.OTLPEndpoint); err != nil {
				return nil, err
			}
		}
	}

	a.handler = httpapi.NewRouter(engine, httpapi.Options{
		Logger:         logger,
		Timeout:        cfg.RequestTimeout,
		MetricsHandler: metricsHandler,
		Health:         a.health(rdb, pg),
		TrustProxy:     cfg.TrustProxy,
	})
	ok = true
	return a, nil
}

// startOTLP pushes engine metrics to an OTLP/gRPC collector.
func (a *app) startOTLP(ctx context.Context, endpoint string) error {
	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("otlp exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))),
	)
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(ctx)
	})

	oe, err := otelexport.NewOTelExporter(mp.Meter("phoneauth"), a.engine)
	if err != nil {
		return fmt.Errorf("otel instruments: %w", err)
	}
	a.closers = append(a.closers, func() { _ = oe.Close() })
	return nil
}

func (a *app) health(rdb redis.UniversalClient, pg *postgres.Storage) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		if pg != nil {
			if err := pg.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		return nil
	}
}

// close releases dependencies in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
