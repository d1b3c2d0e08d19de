// Command onramp-vm runs Onramp bytecode programs.
//
// Usage: onramp-vm [-config path] [-debug] [-api] [-api-port N] <program> [args...]
//
// Only <program> [args...] are part of the Onramp ABI; the
// flags above are host-side conveniences layered on top and must precede
// the program name. Exit code is 125 on a VM fault, otherwise the guest's
// halt status (the low 8 bits of R0).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/onramp-run/onramp-vm/api"
	"github.com/onramp-run/onramp-vm/config"
	"github.com/onramp-run/onramp-vm/debugger"
	"github.com/onramp-run/onramp-vm/loader"
	"github.com/onramp-run/onramp-vm/vm"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("onramp-vm", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.toml (default: per-OS config directory)")
	debugMode := fs.Bool("debug", false, "start in the terminal debugger")
	apiEnabled := fs.Bool("api", false, "start the HTTP/WS monitoring API")
	apiPort := fs.Int("api-port", 0, "monitoring API port (default: from config, or 8080)")
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(argv); err != nil {
		return FaultExitCodeFor(err)
	}

	args := fs.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: onramp-vm [-config path] [-debug] [-api] [-api-port N] <program> [args...]")
		return vm.FaultExitCode
	}
	programPath, guestArgs := args[0], args[1:]

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onramp-vm: %v\n", err)
		return vm.FaultExitCode
	}
	if *apiPort != 0 {
		cfg.API.Port = *apiPort
	}
	if *apiEnabled {
		cfg.API.Enabled = true
	}

	machine, err := newMachine(cfg, programPath, guestArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onramp-vm: %v\n", err)
		return vm.FaultExitCode
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(machine, cfg.API.Port)
		if err := apiServer.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "onramp-vm: api server: %v\n", err)
			return vm.FaultExitCode
		}
		defer apiServer.Stop()
	}

	if *debugMode {
		return debugger.Run(machine)
	}
	return runHeadless(machine)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func newMachine(cfg *config.Config, programPath string, guestArgs []string) (*vm.VM, error) {
	mem := vm.NewMemory(cfg.MemorySizeOrDefault(), cfg.Memory.StrictAlignment)
	machine := vm.New(mem)
	machine.MaxInstructions = cfg.Execution.MaxInstructions

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	if _, err := loader.Load(mem, &machine.Registers, programPath, guestArgs, os.Environ(), cwd); err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}

	return machine, nil
}

// runHeadless runs the VM to completion with no interactive surface, the
// normal case for `onramp-vm program`.
func runHeadless(machine *vm.VM) int {
	err := machine.Run()
	return exitCodeFor(err)
}

// exitCodeFor maps the driver's terminal error into a process exit code
// a clean halt passes through R0's low byte; anything
// else is a fault, exit 125, with a diagnostic on stderr.
func exitCodeFor(err error) int {
	var halt *vm.HaltError
	if asHalt(err, &halt) {
		return int(halt.Code)
	}
	fmt.Fprintf(os.Stderr, "onramp-vm: %v\n", err)
	return vm.FaultExitCode
}

func asHalt(err error, target **vm.HaltError) bool {
	if h, ok := err.(*vm.HaltError); ok {
		*target = h
		return true
	}
	return false
}

// FaultExitCodeFor maps a flag-parsing error to the process exit code.
func FaultExitCodeFor(err error) int {
	if err == flag.ErrHelp {
		return 0
	}
	return vm.FaultExitCode
}
