package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/flowengine/internal/domain"
	"github.com/shaiso/flowengine/internal/executor"
)

// NewRunCmd builds the "run" command group: submit, status, elements,
// result, cancel. execFn is resolved lazily so the root command can wire
// flags (like --json) before the Executor is actually touched.
func NewRunCmd(execFn func() *executor.Executor, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit and inspect flow runs",
	}

	cmd.AddCommand(
		newRunSubmitCmd(execFn, outputFn),
		newRunStatusCmd(execFn, outputFn),
		newRunElementsCmd(execFn, outputFn),
		newRunResultCmd(execFn, outputFn),
		newRunCancelCmd(execFn, outputFn),
	)

	return cmd
}

func newRunSubmitCmd(execFn func() *executor.Executor, outputFn func() *Output) *cobra.Command {
	var userID string
	var inputs []string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit FLOW_NAME",
		Short: "Submit a new run of a registered flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			exec := execFn()
			id, err := exec.Submit(cmd.Context(), args[0], input, userID)
			if err != nil {
				return err
			}

			if !wait {
				outputFn().Print(
					[]string{"RUN_ID"},
					[][]string{{id.String()}},
					map[string]string{"run_id": id.String()},
				)
				return nil
			}

			status, err := waitForTerminal(cmd.Context(), exec, id)
			if err != nil {
				return err
			}

			elems, err := exec.GetElements(cmd.Context(), id)
			if err != nil {
				return err
			}
			elemStrs := make([]string, len(elems))
			for i, e := range elems {
				elemStrs[i] = fmt.Sprint(e.Content)
			}

			result, _ := exec.GetResult(cmd.Context(), id)

			outputFn().Print(
				[]string{"RUN_ID", "STATUS", "ELEMENTS", "RESULT"},
				[][]string{{id.String(), status.String(), strings.Join(elemStrs, ", "), fmt.Sprint(result)}},
				map[string]any{"run_id": id.String(), "status": status.String(), "elements": elems, "result": result},
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "Opaque user id attached to the run")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Input field as KEY=VALUE, repeatable")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the run reaches a terminal status, then print its elements and result")

	return cmd
}

// waitForTerminal polls the run's status until it leaves Pending/Running
// or ctx is cancelled.
func waitForTerminal(ctx context.Context, exec *executor.Executor, id uuid.UUID) (domain.FlowRunStatus, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		status := exec.GetStatus(ctx, id)
		if status.IsTerminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newRunStatusCmd(execFn func() *executor.Executor, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Show a run's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			status := execFn().GetStatus(cmd.Context(), id)
			outputFn().Print(
				[]string{"RUN_ID", "STATUS"},
				[][]string{{id.String(), status.String()}},
				map[string]string{"run_id": id.String(), "status": status.String()},
			)
			return nil
		},
	}
}

func newRunElementsCmd(execFn func() *executor.Executor, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "elements RUN_ID",
		Short: "List a run's emitted elements in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			elems, err := execFn().GetElements(cmd.Context(), id)
			if err != nil {
				return err
			}

			headers := []string{"SEQ", "CREATED_AT", "CONTENT"}
			rows := make([][]string, len(elems))
			for i, e := range elems {
				rows[i] = []string{fmt.Sprint(e.Seq), e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), fmt.Sprint(e.Content)}
			}

			outputFn().Print(headers, rows, elems)
			return nil
		},
	}
}

func newRunResultCmd(execFn func() *executor.Executor, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "result RUN_ID",
		Short: "Show a run's terminal result, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			result, ok := execFn().GetResult(cmd.Context(), id)
			if !ok {
				return fmt.Errorf("run %s has no result yet", id)
			}

			outputFn().Print(
				[]string{"RESULT"},
				[][]string{{fmt.Sprint(result)}},
				map[string]any{"result": result},
			)
			return nil
		},
	}
}

func newRunCancelCmd(execFn func() *executor.Executor, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Cancel a currently-running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			if !execFn().Cancel(cmd.Context(), id) {
				outputFn().Error(fmt.Sprintf("run %s is not currently executing", id))
				return nil
			}
			outputFn().Success(fmt.Sprintf("run %s cancelled", id))
			return nil
		},
	}
}

// parseInputs turns repeated KEY=VALUE flags into a map[string]any input
// payload, or nil if none were given.
func parseInputs(kvs []string) (any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	input := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		input[parts[0]] = parts[1]
	}
	return input, nil
}
