package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the service is ready for transcriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.newClient()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wait {
				waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if err := svc.WaitReady(waitCtx, time.Second); err != nil {
					return err
				}
				fmt.Fprintln(out, "ready")
				return nil
			}

			ready, err := svc.Health(cmd.Context())
			if err != nil {
				return err
			}
			if ready {
				fmt.Fprintln(out, "ready")
			} else {
				fmt.Fprintln(out, "loading")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the service reports ready")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait with --wait")

	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status and queue activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(status)
			}

			readiness := "loading"
			if status.Ready {
				readiness = "ready"
			}
			rows := [][]string{
				{"State", readiness},
				{"Host", status.Hostname},
				{"Model", status.Model},
				{"Queued", strconv.Itoa(status.Queue.Queued)},
				{"Running", strconv.Itoa(status.Queue.Running)},
				{"Completed", strconv.FormatInt(status.Queue.Completed, 10)},
				{"Failed", strconv.FormatInt(status.Queue.Failed, 10)},
				{"Canceled", strconv.FormatInt(status.Queue.Canceled, 10)},
				{"Jobs recorded", strconv.Itoa(status.Jobs.Total)},
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}
