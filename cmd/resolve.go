package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/enrich"
)

var (
	resolveEmail string
	resolveLat   float64
	resolveLon   float64
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <ip>",
	Short: "Resolve a single visitor IP to a company identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnrich(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		event := enrich.Event{IP: args[0], Email: resolveEmail}
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			event.Lat, event.Lon = resolveLat, resolveLon
			event.HasLocation = true
		}

		res, err := env.Orchestrator.Resolve(ctx, event)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		if res.Identity != nil {
			zap.L().Info("resolved",
				zap.String("ip", args[0]),
				zap.String("domain", res.Identity.Domain),
				zap.Float64("confidence", res.Identity.Confidence),
				zap.Bool("from_cache", res.FromCache),
			)
		} else {
			zap.L().Info("no identity assertable", zap.String("ip", args[0]))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveEmail, "email", "", "form-submitted email (ground truth)")
	resolveCmd.Flags().Float64Var(&resolveLat, "lat", 0, "visitor latitude")
	resolveCmd.Flags().Float64Var(&resolveLon, "lon", 0, "visitor longitude")
	rootCmd.AddCommand(resolveCmd)
}
