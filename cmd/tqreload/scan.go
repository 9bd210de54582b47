package main

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mevdschee/tqreload/pkg/scanner"
	"github.com/mevdschee/tqreload/pkg/unit"
)

var scanCmd = &cobra.Command{
	Use:   "scan <files...>",
	Short: "Print the modification times a scan records for unit files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := scanner.Request{Origins: make(map[string]string, len(args))}
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			req.Origins[unit.Name(abs)] = abs
		}
		res := scanner.Scan(req)
		for _, name := range slices.Sorted(maps.Keys(res.MTimes)) {
			mt := res.MTimes[name]
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", name, mt.Format("2006-01-02 15:04:05.000"), req.Origins[name])
		}
		return nil
	},
}
