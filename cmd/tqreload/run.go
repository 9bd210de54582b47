package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mevdschee/tqreload/internal/config"
	"github.com/mevdschee/tqreload/pkg/loader"
	"github.com/mevdschee/tqreload/pkg/loop"
	"github.com/mevdschee/tqreload/pkg/metrics"
	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/reloader"
	"github.com/mevdschee/tqreload/pkg/unit"
	"github.com/mevdschee/tqreload/pkg/watcher"
	"github.com/mevdschee/tqreload/pkg/wrap"
)

var runCmd = &cobra.Command{
	Use:   "run <unit.Type> <main> [errfn] [-- args...]",
	Short: "Construct a unit type and call its main method until interrupted",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runLoop,
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, err := configFile()
	if err != nil {
		return err
	}
	live := newSettings(cfg, path)
	go live.watch(ctx, configCheckInterval)

	id, mainName, errName := args[0], args[1], ""
	if len(args) > 2 {
		errName = args[2]
	}
	var programArgs []string
	if len(args) > 3 {
		programArgs = args[3:]
	}

	table := unit.NewTable(nil)
	loader.New().Register(table)
	registerArgs(table, programArgs)
	dirs, err := loadUnits(ctx, table)
	if err != nil {
		return err
	}
	e, err := table.Resolve(id)
	if err != nil {
		return err
	}
	typ, ok := e.(*object.Type)
	if !ok {
		return fmt.Errorf("%s is a %s, not a type", id, e.Kind())
	}

	r, err := newReloader(cfg, table, dirs)
	if err != nil {
		return err
	}
	defer r.Close()

	if cfg.Metrics.Listen != "" {
		serveMetrics(cfg.Metrics.Listen)
	}

	log.Printf("Running %s.%s", id, mainName)
	return loop.Loop(ctx, r, typ, mainName, errName, wrap.WithBackoffFunc(live.Backoff))
}

// registerArgs exposes the program arguments as sys.args.
func registerArgs(table *unit.Table, args []string) {
	if args == nil {
		args = []string{}
	}
	table.Register("sys", object.Item{Name: "args", Entity: object.Value{V: args}})
}

// loadUnits loads every unit file found in the search path directories.
func loadUnits(ctx context.Context, table *unit.Table) ([]string, error) {
	var dirs []string
	for _, dir := range loop.SearchPath() {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		if _, err := table.LoadDir(ctx, abs); err != nil {
			return nil, err
		}
		dirs = append(dirs, abs)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%s is empty, no units to load", loop.EnvPath)
	}
	return dirs, nil
}

func newReloader(cfg *config.Config, table *unit.Table, dirs []string) (reloader.Reloader, error) {
	switch cfg.Reloading.Strategy {
	case config.StrategyPoll:
		p := reloader.NewPolling(table, cfg.GetScanTimeout())
		p.SetInterval(cfg.GetScanInterval())
		return p, nil
	default:
		roots := cfg.Roots()
		if len(roots) == 0 {
			for _, dir := range dirs {
				roots = append(roots, watcher.Root{Path: dir})
			}
		}
		return reloader.NewWatching(table, roots, cfg.WatchOptions())
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		log.Printf("Serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
}
