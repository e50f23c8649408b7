package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cryptochat/internal/config"
	"cryptochat/internal/log"
	"cryptochat/internal/metrics"
	"cryptochat/internal/pprofutil"
	"cryptochat/internal/server"
)

type cliFlags struct {
	configFile  string
	listen      string
	password    string
	roomBuffer  int
	metricsFile string
	logFile     string
	logLevel    string
	noLog       bool
}

func newRootCommand() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:           "cryptochat-server",
		Short:         "Password-gated encrypted room chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "f", "", "path to the TOML configuration file")
	cmd.Flags().StringVarP(&flags.listen, "listen", "l", "", "listen address (host:port)")
	cmd.Flags().StringVarP(&flags.password, "password", "p", "", "server password")
	cmd.Flags().IntVar(&flags.roomBuffer, "room-buffer", 0, "pending broadcast messages per room subscriber")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "write a JSON metrics snapshot here on shutdown")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "log file, stderr if omitted")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (ERROR, WARNING, NOTICE, INFO, DEBUG)")
	cmd.Flags().BoolVar(&flags.noLog, "no-log", false, "disable logging entirely")

	return cmd
}

// loadConfig merges the optional config file with command line overrides;
// flags win.
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	cfg := new(config.Config)
	if flags.configFile != "" {
		b, err := os.ReadFile(flags.configFile)
		if err != nil {
			return nil, err
		}
		if cfg, err = config.Load(b); err != nil {
			return nil, err
		}
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	if flags.password != "" {
		cfg.Password = flags.password
	}
	if flags.roomBuffer != 0 {
		cfg.RoomBuffer = flags.roomBuffer
	}
	if flags.metricsFile != "" {
		cfg.MetricsFile = flags.metricsFile
	}
	if cfg.Logging == nil {
		cfg.Logging = &config.Logging{}
	}
	if flags.logFile != "" {
		cfg.Logging.File = flags.logFile
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if cmd.Flags().Changed("no-log") {
		cfg.Logging.Disable = flags.noLog
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, flags *cliFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}

	if err := pprofutil.StartFromEnv(os.Stderr); err != nil {
		return err
	}

	m := metrics.New()
	srv := server.New(cfg, backend, m)

	// First SIGINT/SIGTERM halts gracefully, a second one forces exit so
	// the operator is never stuck behind a draining shutdown.
	haltCh := make(chan os.Signal, 2)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	go watchSignals(haltCh, srv.Shutdown, func() { os.Exit(1) })

	err = srv.ListenAndServe()
	if werr := m.WriteSnapshot(cfg.MetricsFile); werr != nil && err == nil {
		err = werr
	}
	return err
}

// watchSignals starts a graceful shutdown on the first signal and forces
// termination on the second.
func watchSignals(sigs <-chan os.Signal, shutdown, force func()) {
	<-sigs
	go shutdown()
	<-sigs
	force()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
