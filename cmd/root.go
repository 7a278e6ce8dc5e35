package cmd

import (
	"fmt"
	"os"

	"github.com/GhostKellz/zmake/internal/zmake"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *zmake.Config
)

var rootCmd = &cobra.Command{
	Use:           "zmake",
	Short:         "Source package build engine",
	Long:          `zmake turns build recipes into signed, reproducible package archives.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = zmake.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			cfg.Values["debug"] = "1"
		}
		zmake.InitConfig(cfg)
		return nil
	},
}

// Execute runs the CLI and exits with the stable code for whatever failed.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "zmake: %v\n", err)
		os.Exit(zmake.ExitCodeFor(err))
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", zmake.Version, zmake.BuildDate)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress progress output")

	viper.SetDefault("packager", "Unknown Packager")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(signCmd)
}
