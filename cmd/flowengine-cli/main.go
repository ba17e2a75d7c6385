// flowengine-cli is a thin cobra command tree over a locally-constructed
// Executor. There is no network API for it to call through, so each
// invocation boots an in-memory engine, registers the demonstration
// flows, runs one command, and exits
// — real deployments embed internal/executor.Executor directly in their
// own process rather than shelling out to this binary per call.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowengine/internal/cli"
	"github.com/shaiso/flowengine/internal/demoflows"
	"github.com/shaiso/flowengine/internal/executor"
	"github.com/shaiso/flowengine/internal/flowqueue"
	"github.com/shaiso/flowengine/internal/flowstore/memstore"
	"github.com/shaiso/flowengine/internal/registry"
	"github.com/shaiso/flowengine/internal/telemetry"
)

var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "flowengine-cli",
		Short:         "flowengine-cli — inspect and drive a local flow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	logger := telemetry.SetupLogger()

	store := memstore.New()
	queue := flowqueue.New(flowqueue.Config{})
	reg := registry.New()
	reg.Register(demoflows.Echo())
	reg.Register(demoflows.Countdown())

	exec := executor.New(store, queue, reg, executor.Config{Logger: logger})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	exec.Start(ctx)

	execFn := func() *executor.Executor { return exec }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(cli.NewRunCmd(execFn, outputFn))

	err := rootCmd.Execute()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	exec.Stop(shutdownCtx)

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
