package loop

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/reloader"
	"github.com/mevdschee/tqreload/pkg/unit"
	"github.com/mevdschee/tqreload/pkg/wrap"
)

// EnvPath lists the directories searched for units, separated by
// os.PathListSeparator.
const EnvPath = "TQRELOAD_PATH"

// Identifier returns the "unit.Type" name under which typ can be resolved
// after a fresh start.
func Identifier(table *unit.Table, typ *object.Type) (string, error) {
	u, ok := table.Get(typ.Unit())
	if !ok || unit.IsStatic(u.Origin) {
		return "", fmt.Errorf("type %s does not come from a unit file", typ.Name())
	}
	return unit.Name(u.Origin) + "." + typ.Name(), nil
}

// SearchPath returns the directories listed in EnvPath.
func SearchPath() []string {
	return filepath.SplitList(os.Getenv(EnvPath))
}

func prependPath(dir string) error {
	paths := []string{dir}
	for _, p := range SearchPath() {
		if p != dir {
			paths = append(paths, p)
		}
	}
	value := paths[0]
	for _, p := range paths[1:] {
		value += string(os.PathListSeparator) + p
	}
	return os.Setenv(EnvPath, value)
}

// Forward is the part of the command line that the restarted process
// repeats. Flags go before the run command, Args after "--".
type Forward struct {
	Flags []string
	Args  []string
}

// execArgs builds the argv of the restarted process.
func execArgs(exe, id, mainName, errName string, fwd Forward) []string {
	argv := []string{exe}
	argv = append(argv, fwd.Flags...)
	argv = append(argv, "run", id, mainName, errName)
	if len(fwd.Args) > 0 {
		argv = append(argv, "--")
		argv = append(argv, fwd.Args...)
	}
	return argv
}

// Launch restarts the current binary as "run <id> <main> <err>" so that
// typ's unit is loaded from disk as a reloadable unit. The unit's directory
// is prepended to EnvPath and fwd is carried over. Where the platform
// cannot replace the running process, typ is resolved again and run
// in-process with a reloader from newReloader.
func Launch(ctx context.Context, table *unit.Table, typ *object.Type, mainName, errName string, fwd Forward, newReloader func() (reloader.Reloader, error), opts ...wrap.Option) error {
	id, err := Identifier(table, typ)
	if err != nil {
		return err
	}
	u, _ := table.Get(typ.Unit())
	if err := prependPath(filepath.Dir(u.Origin)); err != nil {
		return fmt.Errorf("failed to set %s: %w", EnvPath, err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	log.Printf("Launching %s.%s", id, mainName)
	err = execSelf(exe, execArgs(exe, id, mainName, errName, fwd), os.Environ())
	if err != errNoExec {
		return fmt.Errorf("failed to exec %s: %w", exe, err)
	}

	e, err := table.Resolve(id)
	if err != nil {
		return err
	}
	resolved, ok := e.(*object.Type)
	if !ok {
		return fmt.Errorf("%s is a %s, not a type", id, e.Kind())
	}
	r, err := newReloader()
	if err != nil {
		return err
	}
	defer r.Close()
	return Loop(ctx, r, resolved, mainName, errName, opts...)
}
