package main

import (
	"encoding/json"
	"fmt"
	"io"

	"storefront-notifier/internal/core/ports"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type batchFlags struct {
	limit  int
	tenant string
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "maximum rows to claim (default from config)")
	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "restrict the batch to one tenant UUID")
}

func (f *batchFlags) params() (ports.BatchParams, error) {
	if f.limit < 0 {
		return ports.BatchParams{}, fmt.Errorf("--limit must not be negative")
	}
	params := ports.BatchParams{Limit: f.limit}
	if f.tenant != "" {
		id, err := uuid.Parse(f.tenant)
		if err != nil {
			return ports.BatchParams{}, fmt.Errorf("--tenant: %w", err)
		}
		params.TenantID = &id
	}
	return params, nil
}

func scheduleCmd(configPath *string) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Match pending events against rules and schedule notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.scheduler.RunScheduleBatch(cmd.Context(), params)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
	flags.register(cmd)
	return cmd
}

func deliverCmd(configPath *string) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Send due notifications and apply retry policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.dispatcher.RunDeliveryBatch(cmd.Context(), params)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
	flags.register(cmd)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
