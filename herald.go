package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	redisCache "github.com/hhubb22/herald/cache/redis"
	"github.com/hhubb22/herald/configuration"
	"github.com/hhubb22/herald/configurator"
	"github.com/hhubb22/herald/dhcp"
	"github.com/hhubb22/herald/dhcp/config"
	"github.com/hhubb22/herald/dhcp/v4"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFile string
		once       bool
	)

	cmd := &cobra.Command{
		Use:           "herald [interface...]",
		Short:         "DHCPv4 client daemon",
		Long:          "Acquires and maintains a DHCPv4 lease on every given interface. Without arguments the interfaces of the configuration file are used.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), cmd.OutOrStdout(), configFile, once, args)
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", configuration.DefaultPath, "where to load the config from, empty for built-in defaults")
	cmd.Flags().BoolVar(&once, "once", false, "acquire a lease on every interface, print them and exit")

	cmd.AddCommand(newDebugCommand())
	return cmd
}

func runDaemon(ctx context.Context, out io.Writer, configFile string, once bool, args []string) error {
	_ = godotenv.Load()

	conf, err := configuration.Load(ctx, configFile, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := newLogger(conf.Daemon)
	if err != nil {
		return err
	}
	defer closeLog()

	ifaces := interfacesToRun(args, conf.Daemon)
	if len(ifaces) == 0 {
		return errors.New("no interface given and none configured")
	}

	cfgr, closeConfigurators, err := buildConfigurator(&conf, logger)
	if err != nil {
		return err
	}
	defer closeConfigurators()

	metrics, err := dhcp.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	d, err := dhcp.NewDaemon(&conf, ifaces, cfgr, dhcp.Observers(dhcp.LogObserver(logger), metrics.Observe), logger)
	if err != nil {
		return err
	}
	defer d.Shutdown()

	if once {
		leases, err := d.AcquireAll(ctx)
		printLeases(out, leases)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	if listen := conf.Daemon.Metrics.Listen; listen != "" {
		g.Go(func() error {
			return serveStatus(gctx, listen, d.Ready, logger)
		})
	}
	return g.Wait()
}

// interfacesToRun returns the interfaces named on the command line, or
// the configured ones when there are none.
func interfacesToRun(args []string, daemon config.DaemonConfig) []string {
	if len(args) > 0 {
		return args
	}
	names := make([]string, 0, len(daemon.Interfaces))
	for name := range daemon.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newLogger(daemon config.DaemonConfig) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if daemon.Log.Level != "" {
		parsed, err := zerolog.ParseLevel(daemon.Log.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("daemon.log.level: %w", err)
		}
		level = parsed
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if daemon.Log.Path != "" {
		f, err := os.OpenFile(daemon.Log.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("can't open log file: %w", err)
		}
		w = f
		closer = func() { _ = f.Close() }
	}
	if daemon.Log.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), closer, nil
}

// buildConfigurator chains every configured lease consumer behind the log.
func buildConfigurator(conf *configuration.Configuration, logger zerolog.Logger) (configurator.Chain, func(), error) {
	chain := configurator.Chain{configurator.Log{Logger: logger}}
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if conf.Cache.Redis.Enabled() {
		client := redisCache.NewClient(&conf.Cache.Redis)
		if err := redisCache.Ping(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		chain = append(chain, configurator.Redis{Client: client, Prefix: conf.Cache.Redis.Prefix(), Logger: logger})
	}

	if conf.Hook.Enabled() {
		chain = append(chain, configurator.NewWebhook(&conf.Hook, logger))
	}

	if conf.NATS.Enabled() {
		n, err := configurator.NewNATS(&conf.NATS, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, n.Close)
		chain = append(chain, n)
	}

	return chain, closeAll, nil
}

func newStatusMux(ready func() bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready() {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "not every interface holds a lease", http.StatusServiceUnavailable)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func serveStatus(ctx context.Context, addr string, ready func() bool, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           newStatusMux(ready),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("status server shutdown")
		}
	}()

	logger.Info().Str("addr", addr).Msg("status server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func printLeases(out io.Writer, leases map[string]*v4.Lease) {
	names := make([]string, 0, len(leases))
	for name := range leases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		l := leases[name]
		fmt.Fprintf(out, "%s\t%v\tserver=%v\trouters=%v\tdns=%v\texpires=%s\n",
			name, l.Network(), l.ServerID, l.Options.Routers, l.Options.DomainNameServers,
			l.ExpiresAt().Format(time.RFC3339))
	}
}
