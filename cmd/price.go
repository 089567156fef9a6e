package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"resale-pipeline/services"
	"resale-pipeline/storage"
)

func newPriceCommand() *cobra.Command {
	var (
		compsPath string
		outPath   string
		gc        services.GuidanceConfig
	)

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Clean sold comps and compute a maximum buy price per item",
		Long: `Reads sold comps from a CSV file (columns: sold_price and optionally item,
shipping_cost, sale_date, condition, title, thumbnail), removes disqualified
listings and outliers, and prints a confidence-tiered maximum buy price.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if compsPath == "" {
				return errors.New("price: --comps is required")
			}
			groups, err := storage.ReadCompsCSV(compsPath)
			if err != nil {
				return err
			}

			svc := services.NewPricingService(gc, cfg.MaxConcurrency, logger)
			results, err := svc.EvaluateAll(cmd.Context(), groups)
			if err != nil {
				return err
			}
			services.PrintGuidance(os.Stdout, results)

			if outPath == "" {
				return nil
			}
			w, err := storage.NewGuidanceCSVWriter(outPath)
			if err != nil {
				return err
			}
			if err := w.Write(results); err != nil {
				_ = w.Close()
				return err
			}
			logger.Info("[price] Guidance written to %s", outPath)
			return w.Close()
		},
	}

	cmd.Flags().StringVar(&compsPath, "comps", "", "sold comps CSV file")
	cmd.Flags().StringVar(&outPath, "out", "", "optional guidance CSV output path")
	cmd.Flags().Float64Var(&gc.FeeRate, "fee-rate", -1, "platform fee rate (default FEE_RATE)")
	cmd.Flags().Float64Var(&gc.OutboundShipping, "outbound-shipping", -1, "outbound shipping cost (default OUTBOUND_SHIPPING)")
	cmd.Flags().Float64Var(&gc.FixedCosts, "fixed-costs", -1, "fixed per-sale costs (default FIXED_COSTS)")
	cmd.Flags().Float64Var(&gc.ShippingIn, "shipping-in", -1, "inbound shipping already paid (default SHIPPING_IN)")
	cmd.Flags().Float64Var(&gc.TargetMargin, "target-margin", -1, "target profit margin (default TARGET_MARGIN)")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		gc = mergeGuidance(gc, services.GuidanceConfigFrom(cfg.Guidance))
	}
	return cmd
}

// mergeGuidance fills flag values left at -1 from the configured defaults.
func mergeGuidance(flags, defaults services.GuidanceConfig) services.GuidanceConfig {
	pick := func(flag, def float64) float64 {
		if flag < 0 {
			return def
		}
		return flag
	}
	return services.GuidanceConfig{
		FeeRate:          pick(flags.FeeRate, defaults.FeeRate),
		OutboundShipping: pick(flags.OutboundShipping, defaults.OutboundShipping),
		FixedCosts:       pick(flags.FixedCosts, defaults.FixedCosts),
		ShippingIn:       pick(flags.ShippingIn, defaults.ShippingIn),
		TargetMargin:     pick(flags.TargetMargin, defaults.TargetMargin),
	}
}
