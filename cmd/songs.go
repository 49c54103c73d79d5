package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/DrUlysses/Kristine-sub000/model"

	"github.com/spf13/cobra"
)

var songsQuery string

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "Print the local song catalog as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeCatalog, err := openCatalog(cfg.Catalog, false)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer closeCatalog()

		var tracks []model.Track
		if songsQuery != "" {
			tracks, err = repo.FindSongs(context.Background(), songsQuery)
		} else {
			tracks, err = repo.ListSongs(context.Background())
		}
		if err != nil {
			return err
		}
		if tracks == nil {
			tracks = []model.Track{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tracks)
	},
}

func init() {
	songsCmd.Flags().StringVarP(&songsQuery, "query", "q", "", "only print songs matching this text")
	rootCmd.AddCommand(songsCmd)
}
