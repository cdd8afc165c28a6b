package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"eldercare-rules/internal/roomconfig"
	"eldercare-rules/internal/service"

	"github.com/spf13/cobra"
)

func newAckCommand() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an open alert.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAlertID(args[0])
			if err != nil {
				return err
			}
			return withAlertService(cmd, func(ctx context.Context, svc *service.AlertService) error {
				alert, err := svc.AcknowledgeAlert(ctx, id, by)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), alert)
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "who acknowledges the alert")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}

func newCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <alert-id>",
		Short: "Close an open alert.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAlertID(args[0])
			if err != nil {
				return err
			}
			return withAlertService(cmd, func(ctx context.Context, svc *service.AlertService) error {
				alert, err := svc.CloseAlert(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), alert)
			})
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open alerts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAlertService(cmd, func(ctx context.Context, svc *service.AlertService) error {
				alerts, err := svc.ListOpenAlerts(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), alerts)
			})
		},
	}
}

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <room>",
		Short: "Print the effective pre-alert configuration of a room.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			resolved, err := roomconfig.NewFileStore(cfg.Rules.RoomConfigPath, log).Resolve(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resolved)
		},
	}
}

func newPrealertStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prealert-stop <room>",
		Short: "Send a manual pre-alert stop command to a room.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), service.OperatorTimeout)
			defer cancel()
			return service.StopPrealert(ctx, cfg, args[0], log)
		},
	}
}

func withAlertService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.AlertService) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), service.OperatorTimeout)
	defer cancel()

	svc, release, err := service.OpenAlertService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, svc)
}

func parseAlertID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid alert id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
