package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/GhostKellz/zmake/internal/zmake"
	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:          "targets <recipe>",
	Short:        "Build a recipe for all of its declared targets",
	Long:         `Fan a multi-target recipe out into concurrent per-target builds and print a summary.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runTargets,
	SilenceUsage: true,
}

func init() {
	targetsCmd.Flags().IntP("jobs", "j", 0, "Maximum concurrent target builds (0 = all at once)")
	targetsCmd.Flags().Bool("ui", false, "Show a live full-screen monitor")
}

func runTargets(cmd *cobra.Command, args []string) error {
	recipePath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	rec, body, targets, err := zmake.LoadRecipeFile(recipePath)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("recipe declares no build targets")
	}

	catalog, err := zmake.LoadCatalog(zmake.Installed)
	if err != nil {
		return err
	}
	cache, err := openCache()
	if err != nil {
		return err
	}

	jobs, _ := cmd.Flags().GetInt("jobs")
	quiet, _ := cmd.Flags().GetBool("quiet")
	useUI, _ := cmd.Flags().GetBool("ui")

	fan := &zmake.FanOut{
		Config:  cfg,
		Cache:   cache,
		Catalog: catalog,
		Jobs:    jobs,
		Quiet:   quiet,
	}

	ctx, cancel := buildContext()
	defer cancel()

	var report *zmake.FanOutReport
	if useUI {
		labels := make([]string, len(targets))
		for i, t := range targets {
			labels[i] = t.Label
		}
		monitor := zmake.NewFanOutMonitor(labels)
		fan.Observer = monitor.Update

		done := make(chan struct{})
		go func() {
			report = fan.Run(ctx, rec, body, filepath.Dir(recipePath), targets)
			monitor.Stop()
			close(done)
		}()
		if err := monitor.Run(); err != nil {
			return err
		}
		<-done
	} else {
		report = fan.Run(ctx, rec, body, filepath.Dir(recipePath), targets)
	}

	if !quiet {
		report.PrintReport()
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", report.Failed, len(targets))
	}
	return nil
}
