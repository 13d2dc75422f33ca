package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	app "github.com/okian/skillcert/internal/app"
	"github.com/okian/skillcert/pkg/logger"
)

func newLevelsCmd() *cobra.Command {
	var userID, areaID, positionID int64

	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Print the level completion summary of an employee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, client, err := setup(ctx)
			if err != nil {
				return err
			}
			svc := app.New(client,
				app.WithLogger(logger.Named("service")),
				app.WithPrefetch(false),
				app.WithLevelProgress(cfg.LevelProgressEnabled))
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			sum, err := svc.Levels(ctx, userID, areaID, positionID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sum)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Employee id (required)")
	cmd.Flags().Int64Var(&areaID, "area", 0, "Area id (required)")
	cmd.Flags().Int64Var(&positionID, "position", 0, "Position id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("area")
	_ = cmd.MarkFlagRequired("position")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
