package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/glyphd/internal/fonts"
)

var fontsCmd = &cobra.Command{
	Use:   "fonts",
	Short: "List installed fonts",
	Long:  `Run the configured font-listing command (fc-list by default) and print its output.`,
	Args:  cobra.NoArgs,
	RunE:  runFonts,
}

var fontsInspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "Show the family and glyph count of font files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFontsInspect,
}

func init() {
	fontsInspectCmd.Flags().Bool("json", false, "Print JSON")
	fontsCmd.AddCommand(fontsInspectCmd)
}

func runFonts(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := fonts.NewLister(cfg.FontListCommand, cfg.FontListArgs).List(cmd.Context())
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runFontsInspect(cmd *cobra.Command, args []string) error {
	infos := make([]*fonts.Info, 0, len(args))

	for _, path := range args {
		info, err := fonts.Inspect(path)
		if err != nil {
			return err
		}

		infos = append(infos, info)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tFAMILY\tPOSTSCRIPT\tGLYPHS\tUPEM")

	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", info.Path, info.Family, info.PostScriptName, info.Glyphs, info.UnitsPerEm)
	}

	return w.Flush()
}
