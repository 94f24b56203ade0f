package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scanixapp/scanix-server/internal/export"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export <scan-id>",
		Short: "Export a scan as a PDF or a ZIP of page images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			s, err := root.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			scan, err := s.scans.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			exporter, err := export.New(s.cfg.Export.Dir, s.log.Component("export"))
			if err != nil {
				return err
			}

			artifact, err := exporter.Export(cmd.Context(), scan, f)
			if err != nil {
				return err
			}

			dest := artifact.Path
			if out != "" {
				dest = out
				if info, err := os.Stat(out); err == nil && info.IsDir() {
					dest = filepath.Join(out, artifact.FileName)
				}
				if err := copyFile(artifact.Path, dest); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s  %d pages", dest, artifact.Pages)
			if artifact.Skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  (%d skipped)", artifact.Skipped)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "Export format (pdf, zip)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file or directory (default: the export directory)")

	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	outFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(outFile, in); err != nil {
		outFile.Close()
		return err
	}
	return outFile.Close()
}
