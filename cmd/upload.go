package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tikpoptv/terrahost/internal/upload"
)

func newUploadCmd(configPath *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a GeoTIFF as a new asset",
		Long: `Checks the file name (NAME_YYYYMMDD.tif) and TIFF header, copies the
file into the blob store and prints the new asset.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			asset, err := upload.New(a.db, a.store, nil).Upload(cmd.Context(), upload.Request{
				FileName: filepath.Base(args[0]),
				OwnerID:  owner,
				Body:     f,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "stored %s (%s)\n", asset.FileName, humanize.IBytes(uint64(asset.SizeBytes)))
			return printJSON(cmd.OutOrStdout(), asset)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id recorded on the asset")

	return cmd
}
