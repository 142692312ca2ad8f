package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	iotGrpc "liyu1981.xyz/crib-monitor-service/pkg/grpc"
)

var rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
var rndMu sync.Mutex

type options struct {
	devices      int
	interval     time.Duration
	count        int
	httpHostPort string
	grpcHostPort string
}

type stats struct {
	ok     atomic.Int64
	failed atomic.Int64
}

func flipCoin() bool {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(100000)%2 == 0
}

func rndFloat64(min, max float64, decimal int) float64 {
	rndMu.Lock()
	val := min + rnd.Float64()*(max-min)
	rndMu.Unlock()
	multiplier := math.Pow10(decimal)
	return math.Round(val*multiplier) / multiplier
}

// nextReading stays in a comfortable nursery range most of the time and now and then
// wanders out of it so alerts get exercised.
func nextReading(deviceID string) map[string]any {
	temperature := rndFloat64(20, 26, 1)
	humidity := rndFloat64(40, 60, 1)
	body := rndFloat64(36.2, 37.4, 1)
	if flipCoin() && flipCoin() && flipCoin() {
		temperature = rndFloat64(16, 30, 1)
		body = rndFloat64(35.5, 38.5, 1)
	}
	return map[string]any{
		"deviceId":        deviceID,
		"temperature":     temperature,
		"humidity":        humidity,
		"bodyTemperature": body,
	}
}

type sender struct {
	http *resty.Client
	grpc iotGrpc.SensorServiceClient
}

func (s *sender) send(ctx context.Context, payload map[string]any) error {
	if s.grpc != nil && flipCoin() {
		req, err := structpb.NewStruct(payload)
		if err != nil {
			return err
		}
		_, err = s.grpc.PostReading(ctx, req)
		return err
	}

	resp, err := s.http.R().SetContext(ctx).SetBody(payload).Post("/api/sensors")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("POST /api/sensors: %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func runDevice(ctx context.Context, s *sender, deviceID string, opts options, st *stats) {
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for sent := 0; opts.count == 0 || sent < opts.count; sent++ {
		if err := s.send(ctx, nextReading(deviceID)); err != nil {
			st.failed.Add(1)
			if ctx.Err() == nil {
				fmt.Printf("\ndevice %s: %v\n", deviceID, err)
			}
		} else {
			st.ok.Add(1)
		}
		fmt.Printf("\rsent ok=%d failed=%d", st.ok.Load(), st.failed.Load())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func run(ctx context.Context, opts options) error {
	s := &sender{
		http: resty.New().
			SetBaseURL("http://" + opts.httpHostPort).
			SetTimeout(5 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}

	resp, err := s.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to HTTP server: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("HTTP server not available: %s", resp.Status())
	}
	fmt.Printf("http server verified\n")

	if opts.grpcHostPort != "" {
		conn, err := grpc.NewClient(opts.grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("failed to connect to gRPC server: %w", err)
		}
		defer conn.Close()
		s.grpc = iotGrpc.NewSensorServiceClient(conn)
		fmt.Printf("gRPC client connected\n")
	}

	deviceIDs := []string{common.DefaultDeviceID}
	if opts.devices > 1 {
		deviceIDs = make([]string, opts.devices)
		for i := range opts.devices {
			deviceIDs[i] = uuid.NewString()
		}
	}

	st := &stats{}
	startTime := time.Now()
	wg := sync.WaitGroup{}
	for _, id := range deviceIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runDevice(ctx, s, id, opts, st)
		}()
	}
	wg.Wait()
	usedTime := time.Since(startTime)

	fmt.Printf(
		"\nsent %v readings for %v devices (%v failed): used time=%v seconds, throughput=%v readings/second\n",
		st.ok.Load(), len(deviceIDs), st.failed.Load(), usedTime.Seconds(), float64(st.ok.Load())/usedTime.Seconds(),
	)
	return nil
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Simulate crib sensor devices posting readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
	cmd.Flags().IntVar(&opts.devices, "devices", 1, "number of simulated devices; one device uses the default device id")
	cmd.Flags().DurationVar(&opts.interval, "interval", 5*time.Second, "time between readings per device")
	cmd.Flags().IntVar(&opts.count, "count", 0, "readings per device, 0 for no limit")
	cmd.Flags().StringVar(&opts.httpHostPort, "http", "127.0.0.1:1080", "HTTP host:port")
	cmd.Flags().StringVar(&opts.grpcHostPort, "grpc", "", "gRPC host:port; when set half the readings go over gRPC")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
