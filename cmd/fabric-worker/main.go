// Command fabric-worker connects to a fabric-coordinator, reports its
// local resources, waits for its layer assignment, and runs that slice of
// the model.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tensorfabric/fabric/pkg/sysprobe"
	"github.com/tensorfabric/fabric/pkg/workernode"
)

func main() {
	var poolSize int
	var activationAddr string

	rootCmd := &cobra.Command{
		Use:   "fabric-worker master_host master_port",
		Short: "tensorfabric worker: reports capacity and runs its assigned model slice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], poolSize, activationAddr)
		},
		SilenceUsage: true,
		SilenceErrors: true,
	}

	f := rootCmd.Flags()
	f.IntVar(&poolSize, "pool-size", runtime.NumCPU(), "size of this worker's tensor kernel pool")
	f.StringVar(&activationAddr, "activation-addr", "0.0.0.0:0", "local address to listen on for peer activations")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee *exitError
	if as(err, &ee) {
		return ee.code
	}
	return 1
}

// as is a tiny local errors.As to avoid importing errors solely for this
// one call site used by exitCodeFor.
func as(err error, target **exitError) bool {
	for err != nil {
		if e, ok := err.(*exitError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func run(host, port string, poolSize int, activationAddr string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	masterAddr := fmt.Sprintf("%s:%s", host, port)

	probe := sysprobe.NewLinuxProbe()

	client := workernode.New(workernode.Config{
		MasterAddr:     masterAddr,
		ActivationAddr: activationAddr,
		PoolSize:       poolSize,
		Seed:           uint64(os.Getpid()),
	}, logger)
	defer client.Close()

	if err := client.Listen(); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("socket: %w", err)}
	}
	if err := client.Dial(); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("connect: %w", err)}
	}
	logger.Info("connected to coordinator", "master", masterAddr, "activation_addr", client.ActivationAddr())

	ramMB := probe.FreeRAMMB()
	threads := probe.HardwareThreads()
	if err := client.ReportResources(ramMB*1048576, threads); err != nil {
		return &exitError{code: 3, err: fmt.Errorf("reporting resources: %w", err)}
	}
	logger.Info("reported resources", "free_ram_mb", ramMB, "threads", threads)

	assignment, err := client.AwaitConfig(context.Background())
	if err != nil {
		return &exitError{code: 3, err: fmt.Errorf("awaiting config: %w", err)}
	}
	logger.Info("received assignment",
		"layer_begin", assignment.LayerBegin, "layer_end", assignment.LayerEnd,
		"is_first", assignment.IsFirst, "is_last", assignment.IsLast, "next_addr", assignment.NextAddr)

	select {}
}
