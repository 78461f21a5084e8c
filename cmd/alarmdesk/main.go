// Command alarmdesk serves the alarm management API and keeps the local
// inventory in step with Zabbix.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/alarms"
	"github.com/HerbHall/alarmdesk/internal/config"
	"github.com/HerbHall/alarmdesk/internal/dashboard"
	"github.com/HerbHall/alarmdesk/internal/equipment"
	"github.com/HerbHall/alarmdesk/internal/event"
	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/mqtt"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/internal/registry"
	"github.com/HerbHall/alarmdesk/internal/runbook"
	"github.com/HerbHall/alarmdesk/internal/seed"
	"github.com/HerbHall/alarmdesk/internal/server"
	"github.com/HerbHall/alarmdesk/internal/statuscache"
	"github.com/HerbHall/alarmdesk/internal/store"
	"github.com/HerbHall/alarmdesk/internal/version"
	"github.com/HerbHall/alarmdesk/internal/webhook"
	"github.com/HerbHall/alarmdesk/internal/ws"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Println(version.Info())
			return
		case "sync":
			os.Exit(runSync(os.Args[2:]))
		case "seed":
			os.Exit(runSeed(os.Args[2:]))
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	app, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alarmdesk: %v\n", err)
		os.Exit(1)
	}
	defer app.close()
	logger := app.logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	wsHandler := ws.NewHandler(app.bus, logger.Named("ws"))
	defer wsHandler.Close()

	srvCfg, err := server.ConfigFrom(app.v)
	if err != nil {
		logger.Fatal("invalid server config", zap.Error(err))
	}
	addr := srvCfg.Addr()
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return app.db.Ping(ctx)
	})
	srv, err := server.New(srvCfg, app.reg, logger, readyCheck, wsHandler)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
	logger.Info("alarmdesk server ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	drainNotifications(app)
	app.reg.StopAll(shutdownCtx)

	logger.Info("alarmdesk server stopped")
}

// runSync performs one reconciliation pass and exits, for cron-driven
// deployments. Usage: alarmdesk sync [-config path] [equipment|alarms|all]
func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	timeout := fs.Duration("timeout", 5*time.Minute, "overall timeout")
	_ = fs.Parse(args)

	kind := reconcile.KindAll
	if fs.NArg() > 0 {
		kind = fs.Arg(0)
	}

	app, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alarmdesk: %v\n", err)
		return 1
	}
	defer app.close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	results, err := app.sync.Run(ctx, kind)
	drainNotifications(app)
	for _, r := range results {
		fmt.Printf("%s: synced=%d created=%d updated=%d skipped=%d failed=%d\n",
			r.Kind, r.Synced, r.Created, r.Updated, r.Skipped, r.Failed)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync %s failed: %v\n", kind, err)
		return 1
	}
	return 0
}

// drainNotifications gives in-flight webhook and MQTT deliveries a bounded
// window to finish before plugins stop or the process exits.
func drainNotifications(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.bus.Drain(ctx); err != nil {
		a.logger.Warn("event delivery still in flight at exit", zap.Error(err))
	}
}

// runSeed loads the demo site into the configured database.
func runSeed(args []string) int {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	_ = fs.Parse(args)

	app, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alarmdesk: %v\n", err)
		return 1
	}
	defer app.close()

	sum, err := seed.Demo(context.Background(), inventory.New(app.db), time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		return 1
	}
	fmt.Printf("seeded equipment=%d alarms=%d documentation=%d\n", sum.Equipment, sum.Alarms, sum.Documentation)
	return 0
}

// app holds the shared services built by bootstrap.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
	db     *store.Store
	rdb    redis.UniversalClient
	bus    *event.Bus
	reg    *registry.Registry
	sync   *reconcile.Module
}

// selfManaged plugins interpret their own "enabled" key instead of being
// disabled in the registry.
var selfManaged = map[string]bool{"sync": true}

// bootstrap loads configuration, opens the database and status cache, and
// registers and initializes every plugin. Plugins are not started.
func bootstrap(configPath string) (*app, error) {
	v, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg := config.New(v)

	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	a := &app{v: v, logger: logger}

	logger.Info("alarmdesk starting", zap.String("version", version.Short()))
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	ctx := context.Background()

	driver, dsn := v.GetString("database.driver"), v.GetString("database.dsn")
	a.db, err = store.Open(ctx, driver, dsn)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := a.db.CheckVersion(ctx, version.Short()); err != nil {
		a.close()
		return nil, err
	}
	logger.Info("database initialized", zap.String("driver", a.db.Driver()))

	cache := a.statusCache(ctx)

	a.bus = event.NewBus(logger.Named("event"))
	a.reg = registry.New(logger.Named("registry"))
	a.sync = reconcile.New(reconcile.WithStatusCache(cache))

	modules := []plugin.Plugin{
		a.sync,
		equipment.New(),
		alarms.New(),
		runbook.New(),
		dashboard.New(),
		webhook.New(),
		mqtt.New(),
	}
	for _, m := range modules {
		if err := a.reg.Register(m); err != nil {
			a.close()
			return nil, err
		}
		info := m.Info()
		key := "plugins." + info.Name + ".enabled"
		if !info.Required && !selfManaged[info.Name] && v.IsSet(key) && !v.GetBool(key) {
			if err := a.reg.Disable(info.Name, "disabled by configuration"); err != nil {
				a.close()
				return nil, err
			}
		}
	}

	if err := a.reg.Validate(); err != nil {
		a.close()
		return nil, fmt.Errorf("plugin validation: %w", err)
	}
	err = a.reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Store:   a.db,
			Bus:     a.bus,
			Plugins: a.reg,
		}
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialize plugins: %w", err)
	}
	a.reg.Subscribe(a.bus)
	return a, nil
}

// statusCache returns a Redis-backed cache when redis.addr is configured
// and reachable, and an in-process one otherwise.
func (a *app) statusCache(ctx context.Context) statuscache.Cache {
	addr := a.v.GetString("redis.addr")
	if addr == "" {
		return statuscache.NewMemory()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: a.v.GetString("redis.password"),
		DB:       a.v.GetInt("redis.db"),
	})
	err := retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return rdb.Ping(pingCtx).Err()
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(2*time.Second),
	)
	if err != nil {
		a.logger.Warn("redis unreachable; using in-process status cache",
			zap.String("addr", addr), zap.Error(err))
		_ = rdb.Close()
		return statuscache.NewMemory()
	}

	a.rdb = rdb
	a.logger.Info("redis status cache connected", zap.String("addr", addr))
	return statuscache.NewRedis(rdb, statuscache.DefaultKey, a.v.GetDuration("redis.status_ttl"))
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
