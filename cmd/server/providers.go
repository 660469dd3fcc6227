package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dkeye/voxroom/internal/voiceai"
)

func newProvidersCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List voice AI providers and whether credentials are configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			selected, fromEnv, err := voiceai.ResolveType(cfg.AI.FactoryConfig, os.Getenv)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tCONFIGURED\tVOICES\tSEARCH")
			for _, p := range voiceai.Describe(cfg.AI.FactoryConfig, os.Getenv) {
				name := string(p.Type)
				if p.Type == selected {
					name += " *"
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%t\n", name, p.Configured,
					strings.Join(p.Capabilities.Voices, ","), p.Capabilities.WebSearch)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			source := "default"
			switch {
			case fromEnv:
				source = voiceai.EnvProvider
			case cfg.AI.Provider != "":
				source = "config"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n* selected via %s\n", source)
			return nil
		},
	}
}
