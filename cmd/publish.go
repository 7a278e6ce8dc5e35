package cmd

import (
	"path/filepath"

	"github.com/GhostKellz/zmake/internal/zmake"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:          "publish <artifact>...",
	Short:        "Upload built artifacts to the configured object store",
	Args:         cobra.MinimumNArgs(1),
	RunE:         runPublish,
	SilenceUsage: true,
}

func runPublish(cmd *cobra.Command, args []string) error {
	client, err := zmake.NewS3Client(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := buildContext()
	defer cancel()

	for _, arg := range args {
		artifactPath, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		if err := client.PublishArtifact(ctx, artifactPath); err != nil {
			return err
		}
	}
	return nil
}
