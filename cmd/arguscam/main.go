package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/argus-vision/argus/internal/camera"
	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/wire"
)

var opts struct {
	server        string
	framesDir     string
	lat           float64
	lng           float64
	frameInterval time.Duration
	loop          bool
	noDiscovery   bool
	advertiseHost string
}

var rootCmd = &cobra.Command{
	Use:     "arguscam",
	Short:   "Argus edge camera agent",
	Version: config.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&opts.server, "server", "s", "127.0.0.1", "Argus server host")
	rootCmd.Flags().StringVarP(&opts.framesDir, "frames", "f", "", "Directory of JPEG frames to stream (required)")
	rootCmd.Flags().Float64Var(&opts.lat, "lat", 0, "Camera latitude")
	rootCmd.Flags().Float64Var(&opts.lng, "lng", 0, "Camera longitude")
	rootCmd.Flags().DurationVar(&opts.frameInterval, "interval", time.Second, "Delay between frames")
	rootCmd.Flags().BoolVar(&opts.loop, "loop", true, "Replay the frame directory in a loop")
	rootCmd.Flags().BoolVar(&opts.noDiscovery, "no-discovery", false, "Disable UDP discovery heartbeats")
	rootCmd.Flags().StringVar(&opts.advertiseHost, "advertise-host", "", "Host to advertise in discovery heartbeats (default: detected local IP)")
	rootCmd.MarkFlagRequired("frames")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())

	source, err := camera.NewDirectorySource(opts.framesDir, opts.frameInterval)
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}
	source.Loop = opts.loop

	agentOpts := camera.Options{
		ServerHost:        opts.server,
		CameraPort:        cfg.CameraPort(),
		LivePort:          cfg.LivePort(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Location:          wire.Location{Lat: opts.lat, Lng: opts.lng},
	}
	if !opts.noDiscovery {
		agentOpts.DiscoveryAddr = fmt.Sprintf("%s:%d", opts.server, cfg.DiscoveryPort())
		agentOpts.AdvertiseHost = opts.advertiseHost
		if agentOpts.AdvertiseHost == "" {
			agentOpts.AdvertiseHost = localIP(opts.server, cfg.CameraPort())
		}
		agentOpts.AdvertisePort = cfg.CameraPort()
	}

	logger.Info("starting argus camera agent",
		"version", config.Version,
		"server", opts.server,
		"lat", opts.lat, "lng", opts.lng,
		"frames", opts.framesDir)

	agent := camera.New(agentOpts, source, logger)
	return agent.Run(ctx)
}

// localIP reports the local address an outbound connection to the
// server would use. Falls back to the hostname when nothing routes.
func localIP(host string, port int) string {
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		name, _ := os.Hostname()
		return name
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
