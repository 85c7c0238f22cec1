package main

import (
	"fmt"

	"github.com/sortie/replay/internal/api"
	"github.com/sortie/replay/internal/config"
	filestorage "github.com/sortie/replay/internal/storage/file"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <stem|file>...",
	Short: "Upload attempts saved as files to the web frontend",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiCfg := config.GetAPIConfig()
		client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
		if err := client.Healthcheck(); err != nil {
			return fmt.Errorf("web frontend unavailable: %w", err)
		}

		for _, arg := range args {
			stem := filestorage.TrimSuffix(arg)
			a, err := filestorage.LoadStem(stem, Logger)
			if err != nil {
				return err
			}
			if err := client.Upload(a.Summary, filestorage.Files(stem)...); err != nil {
				return fmt.Errorf("failed to upload %s: %w", arg, err)
			}
			Logger.Info("Uploaded attempt", "attemptId", a.Summary.AttemptID, "server", apiCfg.ServerURL)
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", a.Summary.AttemptID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
