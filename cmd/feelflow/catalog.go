package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/feelflow/pkg/catalog"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/ports"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the reflection catalog",
}

var catalogLookupCmd = &cobra.Command{
	Use:   "lookup <feeling|goal> <text>...",
	Short: "Print the reflection the bot would close with for text",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		track := domain.Track(strings.ToLower(args[0]))
		if track != domain.TrackFeeling && track != domain.TrackGoal {
			return fmt.Errorf("unknown track %q: use %s or %s", args[0], domain.TrackFeeling, domain.TrackGoal)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		random := ports.DefaultRandom
		if cfg.Seed != 0 {
			random = ports.NewSeededRandom(cfg.Seed)
		}

		c := catalog.Default(catalog.WithRand(random))
		if cfg.Catalog != "" {
			if c, err = catalog.Load(cfg.Catalog, catalog.WithRand(random)); err != nil {
				return err
			}
		}

		text := strings.Join(args[1:], " ")
		if category, ok := c.Match(text, track); ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "category: %s\n", category.Name)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), "category: (default)")
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.Lookup(text, track))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogLookupCmd)
}
