package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go-pos-hostswitch/internal/admin"
	"go-pos-hostswitch/internal/batch"
	"go-pos-hostswitch/internal/config"
	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/logger"
	"go-pos-hostswitch/internal/online"
	"go-pos-hostswitch/internal/workflow"
)

var (
	envFile   string
	hostsFile string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "terminal",
	Short:         "POS terminal host switch for FDMS, Amex and Diners acquirers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&hostsFile, "hosts", "", "host definitions file (overrides HOSTS_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(echoCmd, saleCmd, voidCmd, reverseCmd, settleCmd, serveCmd)
}

// app is everything a subcommand needs, wired from configuration.
type app struct {
	cfg    *config.Config
	hosts  *config.Hosts
	log    zerolog.Logger
	state  *admin.State
	store  *batch.SQLiteStore
	sw     *hostswitch.HostSwitch
	runner *workflow.Runner

	// mu serializes use of the host switch across the CLI and scheduled jobs.
	mu sync.Mutex
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if hostsFile != "" {
		cfg.HostsFile = hostsFile
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: cfg.LogPretty})

	hosts, err := config.LoadHosts(cfg.HostsFile)
	if err != nil {
		return nil, err
	}
	store, err := batch.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	lastInvoice, err := store.LastInvoice(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}

	state := admin.NewState()
	counters := hostswitch.NewCounters(uint32(time.Now().Unix()%1000000), lastInvoice)
	factories := hostswitch.NewFactories(
		hosts.TransportFactory(cfg, log, state.LinkChanged),
		hosts.Amex,
		log,
		online.WithTimeout(cfg.OnlineTimeout),
	)
	sw := hostswitch.New(hosts, counters, factories,
		hostswitch.WithLogger(log),
		hostswitch.WithObserver(state.Observe),
		hostswitch.WithWaitTimeout(cfg.ConnectTimeout),
	)

	return &app{
		cfg:    cfg,
		hosts:  hosts,
		log:    log,
		state:  state,
		store:  store,
		sw:     sw,
		runner: workflow.New(sw, store, counters, log),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// resolveHost turns a host flag into an index. A zero flag is allowed only
// when a single host is configured.
func (a *app) resolveHost(index int) (int, error) {
	if index != 0 {
		if _, ok := a.hosts.HostDefinition(index); !ok {
			return 0, fmt.Errorf("unknown host index %d", index)
		}
		return index, nil
	}
	defs := a.hosts.Definitions()
	if len(defs) != 1 {
		return 0, fmt.Errorf("--host is required with %d hosts configured", len(defs))
	}
	return defs[0].Index, nil
}
