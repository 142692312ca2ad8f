package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"liyu1981.xyz/crib-monitor-service/pkg/broadcast"
	"liyu1981.xyz/crib-monitor-service/pkg/cache"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/db"
	iotGrpc "liyu1981.xyz/crib-monitor-service/pkg/grpc"
	iotHttp "liyu1981.xyz/crib-monitor-service/pkg/http"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
	"liyu1981.xyz/crib-monitor-service/pkg/mqtt"
	"liyu1981.xyz/crib-monitor-service/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

func openIot(cfg Config) (*iot.IOT, *db.DB, error) {
	dialector, err := db.DialectorFor(cfg.DBType, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	dbInstance := db.GetInstance(dialector)

	iotCore := iot.New(*dbInstance, iot.Options{
		StoreTimeout:      cfg.StoreTimeout,
		ThresholdCacheTTL: cfg.ThresholdCacheTTL,
	})
	return iotCore, dbInstance, nil
}

// connectRedis returns nil when Redis is not configured or not reachable; the service
// then answers latest-reading queries from the database alone.
func connectRedis(ctx context.Context, addr string, logger *zap.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis not reachable, latest reading cache disabled", zap.String("addr", addr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	logger.Info("Latest reading cache enabled", zap.String("addr", addr))
	return rdb
}

// stopGRPC lets in-flight calls finish, then cancels whatever is left, such as open
// Subscribe streams.
func stopGRPC(server *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		server.Stop()
	}
}

// serve runs every transport until ctx is cancelled or one of them fails. Resources are
// released by deferred calls, so an early return during startup tears down whatever
// was already running: gRPC, MQTT, broadcaster, Redis, tracer and database, in that order.
func serve(ctx context.Context, cfg Config) (err error) {
	logger := common.GetLogger()
	defer common.SyncLogger()

	iotCore, dbInstance, err := openIot(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if e := dbInstance.Close(); e != nil {
			logger.Warn("Database close", zap.Error(e))
		}
	}()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtlpEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if e := shutdownTracing(shutdownCtx); e != nil {
			logger.Warn("Tracer shutdown", zap.Error(e))
		}
	}()

	rdb := connectRedis(ctx, cfg.RedisAddr, logger)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		iotCore.WithServices(iot.ServiceOpts{Cache: cache.NewLatestCache(rdb)})
	}

	broadcaster := broadcast.New(iotCore.Reading, cfg.BroadcastBuffer)
	defer broadcaster.Close()
	iotCore.WithServices(iot.ServiceOpts{Publisher: broadcaster})

	// stops the sweeper and the alert republisher
	ctx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var limiterStore *iot.RateLimiterStore
	if cfg.DefaultRate > 0 {
		limiterStore = iot.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst)
		logger.Info("Rate limiter enabled",
			zap.String("default_limiter",
				fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", cfg.DefaultRate, cfg.DefaultBurst)))
	}

	sweeper := iot.NewRetentionSweeper(iotCore.Reading, cfg.RetentionSweepInterval)
	go sweeper.Run(ctx)

	if cfg.MqttBrokerURL != "" {
		mqttClient, err := mqtt.Connect(cfg.MqttBrokerURL, cfg.MqttClientID)
		if err != nil {
			return err
		}
		defer mqttClient.Close()

		if err := mqtt.NewBridge(iotCore.Sensor, cfg.MqttTopicPrefix).Start(ctx, mqttClient); err != nil {
			return err
		}
		republisher := mqtt.NewAlertRepublisher(broadcaster, mqttClient, cfg.MqttTopicPrefix)
		go func() {
			if err := republisher.Run(ctx); err != nil {
				logger.Error("Alert republisher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	if cfg.GRPCHostPort != "" {
		sensorServer := &iotGrpc.SensorServer{
			Iot:              iotCore,
			RateLimiterStore: limiterStore,
			Broadcaster:      broadcaster,
			DefaultDeviceID:  cfg.DefaultDeviceID,
		}
		interceptor := sensorServer.CreateRateLimitInterceptor([]string{
			iotGrpc.SensorService_PostReading_FullMethodName,
			iotGrpc.SensorService_UpdateThresholds_FullMethodName,
		})
		grpcServer := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
		iotGrpc.RegisterSensorServiceServer(grpcServer, sensorServer)

		listener, err := net.Listen("tcp", cfg.GRPCHostPort)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCHostPort, err)
		}
		defer stopGRPC(grpcServer, shutdownTimeout)

		logger.Info("Starting gRPC server on " + cfg.GRPCHostPort)
		go func() {
			if err := grpcServer.Serve(listener); err != nil {
				errCh <- fmt.Errorf("grpc server failed to serve: %w", err)
			}
		}()
	}

	if common.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	rs := &iotHttp.RestfulServer{
		Server:           gin.Default(),
		Iot:              iotCore,
		RateLimiterStore: limiterStore,
		Broadcaster:      broadcaster,
		DefaultDeviceID:  cfg.DefaultDeviceID,
		CorsOrigin:       cfg.CorsOrigin,
	}
	rs.Setup()

	httpServer := &http.Server{
		Addr:              cfg.HTTPHostPort,
		Handler:           rs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Starting HTTP server on: " + cfg.HTTPHostPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed to serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-errCh:
		logger.Error("Server failed, shutting down", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if e := httpServer.Shutdown(shutdownCtx); e != nil {
		logger.Warn("HTTP server shutdown", zap.Error(e))
	}
	return err
}

func prune(ctx context.Context, cfg Config) error {
	defer common.SyncLogger()

	iotCore, dbInstance, err := openIot(cfg)
	if err != nil {
		return err
	}
	defer dbInstance.Close()

	deleted, err := iot.NewRetentionSweeper(iotCore.Reading, cfg.RetentionSweepInterval).Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d expired readings\n", deleted)
	return nil
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	withConfig := func(run func(context.Context, Config) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		}
	}

	root := &cobra.Command{
		Use:   "server",
		Short: "Crib sensor ingestion service",
		RunE:  withConfig(serve),
	}
	root.PersistentFlags().String("db-type", "", "database type: file, memory, postgres or mysql")
	root.PersistentFlags().String("http", "", "HTTP host:port")
	root.PersistentFlags().String("grpc", "", "gRPC host:port, empty disables gRPC")
	_ = v.BindPFlag(common.EnvKeyIOTDBType, root.PersistentFlags().Lookup("db-type"))
	_ = v.BindPFlag(common.EnvKeyIOTHttpHostPort, root.PersistentFlags().Lookup("http"))
	_ = v.BindPFlag(common.EnvKeyIOTGrpcHostPort, root.PersistentFlags().Lookup("grpc"))

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP, gRPC and MQTT transports (default)",
			RunE:  withConfig(serve),
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Delete readings older than the retention window and exit",
			RunE:  withConfig(prune),
		},
	)
	return root
}

func main() {
	if err := godotenv.Load(); err != nil && common.IsDevelopment() {
		log.Fatal("Error loading .env file, copy .env.example to .env first if in development")
	}

	if err := newRootCommand(newViper()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
