package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/GhostKellz/zmake/internal/zmake"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:          "build <recipe>",
	Aliases:      []string{"package"},
	Short:        "Build a package from a recipe",
	Long:         `Run a recipe through source acquisition, the build hooks and archive composition.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runBuild,
	SilenceUsage: true,
}

var cleanCmd = &cobra.Command{
	Use:          "clean",
	Short:        "Empty the build cache",
	RunE:         runClean,
	SilenceUsage: true,
}

func init() {
	buildCmd.Flags().Bool("no-cache", false, "Ignore and do not populate the build cache")
	buildCmd.Flags().StringSlice("conflicts", nil, "Package names that must not be installed")
}

// buildContext is cancelled on SIGINT/SIGTERM so in-flight hooks are reaped.
func buildContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openCache() (*zmake.BuildCache, error) {
	maxMB, err := strconv.ParseInt(cfg.Get("cache_max_mb", "2048"), 10, 64)
	if err != nil {
		maxMB = 2048
	}
	return zmake.OpenBuildCache(filepath.Join(cfg.Get("cache_dir", "/var/cache/zmake"), "builds"), maxMB)
}

func runBuild(cmd *cobra.Command, args []string) error {
	recipePath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	rec, body, targets, err := zmake.LoadRecipeFile(recipePath)
	if err != nil {
		return err
	}
	if len(targets) > 0 {
		return fmt.Errorf("recipe declares build targets, use 'zmake targets %s'", args[0])
	}

	catalog, err := zmake.LoadCatalog(zmake.Installed)
	if err != nil {
		return err
	}

	var cache *zmake.BuildCache
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		cache, err = openCache()
		if err != nil {
			return err
		}
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	conflicts, _ := cmd.Flags().GetStringSlice("conflicts")

	ctx, cancel := buildContext()
	defer cancel()

	pipe := &zmake.Pipeline{
		Config:    cfg,
		Cache:     cache,
		Catalog:   catalog,
		Conflicts: conflicts,
		Quiet:     quiet,
		LogWriter: os.Stdout,
	}
	if quiet {
		pipe.LogWriter = nil
	}

	_, err = pipe.Run(ctx, rec, body, filepath.Dir(recipePath))
	return err
}

func runClean(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	entries := cache.Len()
	size := cache.Size()
	if err := cache.Purge(); err != nil {
		return err
	}
	fmt.Printf("Removed %d cached builds (%d bytes)\n", entries, size)
	return nil
}
