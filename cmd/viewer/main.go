package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"liyu1981.xyz/crib-monitor-service/pkg/viewer"
)

func streamURL(server, deviceID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	q := u.Query()
	if deviceID != "" {
		q.Set("deviceId", deviceID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func main() {
	_ = godotenv.Load()

	var server, deviceID string
	cmd := &cobra.Command{
		Use:   "viewer",
		Short: "Live terminal view of crib sensor readings and alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := streamURL(server, deviceID)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return viewer.Run(ctx, target, deviceID)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:1080", "crib monitor server base URL")
	cmd.Flags().StringVar(&deviceID, "device", os.Getenv("IOT_DEFAULT_DEVICE_ID"), "only show this device")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
