package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/GhostKellz/zmake/internal/zmake"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:          "keygen <id>",
	Short:        "Generate a new signing key pair",
	Args:         cobra.ExactArgs(1),
	RunE:         runKeygen,
	SilenceUsage: true,
}

var signCmd = &cobra.Command{
	Use:          "sign <artifact>...",
	Short:        "Sign built artifacts with the configured key",
	Args:         cobra.MinimumNArgs(1),
	RunE:         runSign,
	SilenceUsage: true,
}

func init() {
	signCmd.Flags().StringP("key", "k", "", "Key id to sign with (defaults to the configured key_id)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := zmake.GenerateKeyPair(id); err != nil {
		return err
	}
	fmt.Printf("Generated key pair %s under %s\n", id, zmake.KeyDir)
	return nil
}

func runSign(cmd *cobra.Command, args []string) error {
	keyID, _ := cmd.Flags().GetString("key")
	if keyID == "" {
		keyID = cfg.Values["key_id"]
	}
	if keyID == "" {
		return fmt.Errorf("no signing key configured (set key_id or pass --key)")
	}

	for _, arg := range args {
		artifactPath, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		if err := zmake.SignArtifact(artifactPath, keyID); err != nil {
			return err
		}
		fmt.Printf("Signed %s\n", filepath.Base(artifactPath))
	}
	return nil
}
