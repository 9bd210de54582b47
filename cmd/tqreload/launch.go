package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mevdschee/tqreload/pkg/loader"
	"github.com/mevdschee/tqreload/pkg/loop"
	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/reloader"
	"github.com/mevdschee/tqreload/pkg/unit"
	"github.com/mevdschee/tqreload/pkg/wrap"
)

var launchCmd = &cobra.Command{
	Use:   "launch <file> <Type> <main> [errfn] [-- args...]",
	Short: "Load a unit file and restart as run with its directory on the search path",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	table := unit.NewTable(nil)
	loader.New().Register(table)
	var programArgs []string
	if len(args) > 4 {
		programArgs = args[4:]
	}
	registerArgs(table, programArgs)
	name := unit.Name(path)
	if _, err := table.Load(ctx, name, path); err != nil {
		return err
	}
	e, err := table.Resolve(name + "." + args[1])
	if err != nil {
		return err
	}
	typ, ok := e.(*object.Type)
	if !ok {
		return fmt.Errorf("%s is a %s, not a type", args[1], e.Kind())
	}

	mainName, errName := args[2], ""
	if len(args) > 3 {
		errName = args[3]
	}
	fwd := loop.Forward{Flags: inheritedFlags(cmd), Args: programArgs}

	cfgPath, err := configFile()
	if err != nil {
		return err
	}
	live := newSettings(cfg, cfgPath)
	go live.watch(ctx, configCheckInterval)

	factory := func() (reloader.Reloader, error) {
		return newReloader(live.Config(), table, []string{filepath.Dir(path)})
	}
	return loop.Launch(ctx, table, typ, mainName, errName, fwd, factory, wrap.WithBackoffFunc(live.Backoff))
}

// inheritedFlags renders the root flags that were set on the command line.
func inheritedFlags(cmd *cobra.Command) []string {
	var flags []string
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			flags = append(flags, "--"+f.Name+"="+f.Value.String())
		}
	})
	return flags
}
