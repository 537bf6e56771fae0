package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dop251/goja"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/scriptworld/internal/interp"
	"github.com/vovakirdan/scriptworld/internal/runner"
)

var flagCheckCall string

var checkCmd = &cobra.Command{
	Use:   "check [script]",
	Short: "Import a script once and report its exports",
	Long: `Import a script in a fresh interpreter thread, the same way a worker
does at startup, and list what it exports. Without an argument the
configured bootstrapper is checked.

The command fails if the import fails or the script does not export a
start() function. With --call, an exported function that takes no
arguments is called once after the import and its result printed.

Examples:
  scriptworld check
  scriptworld check game/villager.js
  scriptworld check game/villager.js --call describe`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&flagCheckCall, "call", "", "Call this exported function after import")
}

func runCheck(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.BootstrapPath()
	if len(args) == 1 {
		path = args[0]
	}
	folder := cfg.Files.GameFolder
	if len(args) == 1 {
		folder = filepath.Dir(path)
	}

	ctx := interp.New(interp.Options{GameFolder: folder})
	ts := ctx.NewThreadState()
	defer ts.Release()

	var (
		names    []string
		kinds    = make(map[string]string)
		hasStart bool
		result   string
	)
	ts.With(func() {
		mod, importErr := ctx.ImportFile(ts, path)
		if importErr != nil {
			err = importErr
			return
		}
		exports := mod.Exports()
		for _, k := range exports.Keys() {
			names = append(names, k)
			v := exports.Get(k)
			switch {
			case goja.IsUndefined(v) || goja.IsNull(v):
				kinds[k] = v.String()
			case isFunction(v):
				kinds[k] = "function"
			default:
				kinds[k] = v.ExportType().String()
			}
		}
		hasStart = mod.Has(runner.EntryPoint)
		if flagCheckCall == "" {
			return
		}
		v, callErr := mod.Call(flagCheckCall)
		if callErr != nil {
			err = fmt.Errorf("calling %s(): %w", flagCheckCall, callErr)
			return
		}
		result = v.String()
	})
	if err != nil {
		return err
	}

	sort.Strings(names)
	fmt.Printf("%s\n\n", path)
	if len(names) == 0 {
		fmt.Println("  (no exports)")
	}
	for _, n := range names {
		fmt.Printf("  %-20s  %s\n", n, kinds[n])
	}
	fmt.Println()
	if flagCheckCall != "" {
		fmt.Printf("%s() = %s\n\n", flagCheckCall, result)
	}

	if !hasStart {
		return fmt.Errorf("%s does not export a %s() function", path, runner.EntryPoint)
	}
	fmt.Printf("OK: %s() found\n", runner.EntryPoint)
	return nil
}

func isFunction(v goja.Value) bool {
	_, ok := goja.AssertFunction(v)
	return ok
}
