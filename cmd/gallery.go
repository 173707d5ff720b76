package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloodei/apt-attendance/internal/config"
	"github.com/cloodei/apt-attendance/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the enrolled gallery index",
}

var galleryInfoCmd = &cobra.Command{
	Use:   "info <index-path>",
	Short: "Print the gallery index metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := gallery.LoadMetadata(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Gallery index: %s\n", args[0])
		fmt.Printf("  Embeddings: %d\n", meta.EntryCount)
		fmt.Printf("  Students:   %d\n", meta.StudentCount)
		fmt.Printf("  Dimension:  %d\n", meta.Dim)
		fmt.Printf("  Built:      %s\n", meta.BuildTime.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Version:    %d\n", meta.Version)
		return nil
	},
}

var galleryVerifyCmd = &cobra.Command{
	Use:   "verify <index-path>",
	Short: "Check that every enrolled embedding resolves to its own student",
	Long: `Load the gallery index and resolve every enrolled reference embedding
against it. Each embedding must match its own student with similarity 1.0;
anything else means corrupted or colliding enrollment data.`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryVerify,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryInfoCmd)
	galleryCmd.AddCommand(galleryVerifyCmd)
}

func runGalleryVerify(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	idx, err := gallery.Load(args[0], cfg.Pipeline.Match.MinSimilarity)
	if err != nil {
		return err
	}

	entries, err := gallery.LoadEntries(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	var mismatches int
	for _, entry := range entries {
		match, err := idx.Resolve(ctx, entry.Embedding)
		if err != nil {
			return fmt.Errorf("resolving entry %d: %w", entry.ID, err)
		}
		if match.StudentID != entry.StudentID {
			mismatches++
			fmt.Printf("Mismatch: entry %d enrolled for student %d resolves to %d (similarity %.3f)\n",
				entry.ID, entry.StudentID, match.StudentID, match.Similarity)
		}
	}

	fmt.Printf("Verified %d embeddings, %d mismatches\n", len(entries), mismatches)
	if mismatches > 0 {
		return fmt.Errorf("gallery verification failed")
	}
	return nil
}
