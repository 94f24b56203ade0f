package cli

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/spf13/cobra"
)

// SamplePage renders a placeholder page: a light sheet with n dark bars
// along its left edge so page order is visible in exports.
func SamplePage(n, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	paper := color.RGBA{R: 245, G: 242, B: 232, A: 255}
	ink := color.RGBA{R: 40, G: 40, B: 48, A: 255}

	barHeight := max(height/40, 2)
	for y := range height {
		for x := range width {
			img.Set(x, y, paper)
		}
	}
	for i := range n {
		top := barHeight * (2*i + 1)
		for y := top; y < min(top+barHeight, height); y++ {
			for x := width / 10; x < width/3; x++ {
				img.Set(x, y, ink)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	var (
		scans int
		pages int
		name  string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create sample scans for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scans < 1 || pages < 1 {
				return fmt.Errorf("--scans and --pages must be at least 1")
			}

			s, err := root.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			blobs := make([][]byte, 0, pages)
			for n := range pages {
				blob, err := SamplePage(n+1, 600, 800)
				if err != nil {
					return fmt.Errorf("render sample page: %w", err)
				}
				blobs = append(blobs, blob)
			}

			for i := range scans {
				outcome := s.scans.Append(cmd.Context(), "", blobs)
				if !outcome.Created {
					return fmt.Errorf("seed scan %d: nothing created", i+1)
				}
				if outcome.PersistErr != nil {
					return fmt.Errorf("seed scan %d: %w", i+1, outcome.PersistErr)
				}

				scan := outcome.Scan
				if name != "" {
					renamed := s.scans.Rename(cmd.Context(), scan.ID, fmt.Sprintf("%s %d", name, i+1))
					if renamed.PersistErr != nil {
						return fmt.Errorf("rename scan %s: %w", scan.ID, renamed.PersistErr)
					}
					scan = renamed.Scan
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s  %d pages  %s\n", scan.ID, scan.PageCount(), displayName(scan.Name))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&scans, "scans", 3, "Number of scans to create")
	cmd.Flags().IntVar(&pages, "pages", 4, "Pages per scan")
	cmd.Flags().StringVar(&name, "name", "", "Name prefix; generated names are used when empty")

	return cmd
}
