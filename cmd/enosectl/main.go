// Command enosectl is the control-core CLI: validate a program file
// against the rig's static hardware constraints, run it end to end, or
// watch a live dashboard while it runs. A run() that returns an error,
// flags parsed up front, components assembled through one composition
// root.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/enose-rig/enosectl/internal/app"
	"github.com/enose-rig/enosectl/internal/dashboard"
	"github.com/enose-rig/enosectl/internal/programfile"
	"github.com/enose-rig/enosectl/internal/renderer"
	"github.com/enose-rig/enosectl/internal/status"
	"github.com/enose-rig/enosectl/internal/sweepfile"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: enosectl <validate|run|sweep|dashboard> [flags] <file.yaml>")
	}

	switch args[0] {
	case "validate":
		return runValidate(args[1:])
	case "run":
		return runRun(args[1:])
	case "sweep":
		return runSweep(args[1:])
	case "dashboard":
		return runDashboard(args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func commonFlags(fs *flag.FlagSet) (configPath *string) {
	return fs.String("config", "config.yaml", "path to rig config.yaml")
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: enosectl validate --config config.yaml <program.yaml>")
	}

	c, err := app.Initialize(app.Options{ConfigPath: *configPath})
	if err != nil {
		return err
	}
	defer c.Close()

	prog, err := programfile.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	result := c.Validate.Validate(prog)
	fmt.Println(renderer.Summary(result))
	fmt.Println(renderer.ProgramTree(prog, result))
	fmt.Println(status.Report(prog.Name, result))

	if !result.Valid {
		os.Exit(2)
	}
	return nil
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := commonFlags(fs)
	persistPath := fs.String("db", "", "optional sqlite path to record the run")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: enosectl run --config config.yaml <program.yaml>")
	}

	c, err := app.Initialize(app.Options{ConfigPath: *configPath, PersistPath: *persistPath})
	if err != nil {
		return err
	}
	defer c.Close()

	prog, err := programfile.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	result := c.Validate.Validate(prog)
	if !result.Valid {
		fmt.Println(status.Report(prog.Name, result))
		return fmt.Errorf("program failed validation, not running")
	}

	res := c.Sched.Run(context.Background(), prog)
	if !res.Success {
		return fmt.Errorf("run failed: %s: %s", res.ErrorCode, res.ErrorMessage)
	}
	fmt.Printf("run completed in %.1fs\n", res.DurationS)
	return nil
}

func runDashboard(args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	configPath := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: enosectl dashboard --config config.yaml <program.yaml>")
	}

	c, err := app.Initialize(app.Options{ConfigPath: *configPath})
	if err != nil {
		return err
	}
	defer c.Close()

	prog, err := programfile.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	sub := c.Emitter.Subscribe()
	model := dashboard.New(c.Sched, sub)

	errCh := make(chan error, 1)
	go func() {
		result := c.Validate.Validate(prog)
		if !result.Valid {
			errCh <- fmt.Errorf("program failed validation")
			return
		}
		res := c.Sched.Run(context.Background(), prog)
		if !res.Success {
			errCh <- fmt.Errorf("run failed: %s: %s", res.ErrorCode, res.ErrorMessage)
			return
		}
		errCh <- nil
	}()

	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return <-errCh
}

func runSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := commonFlags(fs)
	persistPath := fs.String("db", "", "optional sqlite path to record every cycle")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: enosectl sweep --config config.yaml <sweep.yaml>")
	}

	points, err := sweepfile.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	c, err := app.Initialize(app.Options{ConfigPath: *configPath, PersistPath: *persistPath})
	if err != nil {
		return err
	}
	defer c.Close()

	results := c.Sweep.RunSweep(context.Background(), points)

	failures := 0
	for _, r := range results {
		id := fmt.Sprintf("%s#%d", r.ParamSetID, r.CycleIndex)
		fmt.Println(status.Summary(id, r.Success, r.ErrorCode, r.ErrorMessage, r.StartedAt, r.FinishedAt))
		if !r.Success {
			failures++
		}
		if c.Store != nil {
			if err := c.Store.SaveResult(context.Background(), r); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to persist cycle %s: %v\n", id, err)
			}
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d/%d sweep cycles failed", failures, len(results))
	}
	return nil
}
