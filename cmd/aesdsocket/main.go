package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aesdlogd/aesdlogd/internal/constants"
	"github.com/aesdlogd/aesdlogd/internal/daemon"
	"github.com/aesdlogd/aesdlogd/internal/logging"
	"github.com/aesdlogd/aesdlogd/internal/server"
)

// flags holds the parsed command-line arguments, mirroring the teacher's
// cmd/ublk-mem/main.go flag-var-struct shape.
var flags struct {
	daemonize      bool
	port           int
	mode           string
	dataFile       string
	maxCommandSize int
	verbose        bool
}

var rootCmd = &cobra.Command{
	Use:   "aesdsocket",
	Short: "Concurrent line-oriented TCP log server (AESDSOCKET)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&flags.daemonize, "daemon", "d", false, "run as a background daemon after a successful bind")
	rootCmd.Flags().IntVar(&flags.port, "port", constants.DefaultPort, "TCP port to listen on")
	rootCmd.Flags().StringVar(&flags.mode, "mode", "file", "log sink backend: file|device")
	rootCmd.Flags().StringVar(&flags.dataFile, "data-file", constants.DataFilePath, "file-mode data file path")
	rootCmd.Flags().IntVar(&flags.maxCommandSize, "max-command-size", constants.MaxCommandSize, "maximum bytes per command/packet before it is dropped")
	rootCmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aesdsocket: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logConfig := logging.DefaultConfig()
	if flags.verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	mode := server.ModeFile
	if flags.mode == string(server.ModeDevice) {
		mode = server.ModeDevice
	}

	constants.MaxCommandSize = flags.maxCommandSize
	constants.MaxPacketSize = flags.maxCommandSize

	srv, err := server.New(server.Config{
		Port:         flags.port,
		Mode:         mode,
		DataFilePath: flags.dataFile,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	signal.Ignore(syscall.SIGPIPE)

	if daemon.IsChild() {
		ln, err := daemon.InheritedListener()
		if err != nil {
			return fmt.Errorf("adopt inherited listener: %w", err)
		}
		srv.UseListener(ln)
	} else {
		if err := srv.Bind(ctx); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
		if flags.daemonize {
			if err := daemon.Daemonize(srv.Listener(), os.Args[1:]); err != nil {
				return fmt.Errorf("daemonize: %w", err)
			}
			logger.Info("daemonized, parent exiting", "pid", os.Getpid())
			return nil
		}
	}

	serveErr := srv.Serve(ctx)
	if ctx.Err() != nil {
		logger.Info("caught signal, exiting")
	}

	if closeErr := srv.Close(); closeErr != nil {
		return closeErr
	}
	if serveErr != nil && !errors.Is(serveErr, server.ErrServerClosed) {
		return serveErr
	}
	return nil
}
