package cli

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scanixapp/scanix-server/internal/domain"
)

// Report is the result of inspecting a store.
type Report struct {
	Scans  []ScanReport `yaml:"scans"`
	Totals Totals       `yaml:"totals"`
}

// Totals summarizes a Report.
type Totals struct {
	Scans    int `yaml:"scans"`
	Pages    int `yaml:"pages"`
	Problems int `yaml:"problems"`
}

// ScanReport describes one stored scan.
type ScanReport struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Pages    int      `yaml:"pages"`
	Orders   []int    `yaml:"orders,flow"`
	Missing  int      `yaml:"missing_images,omitempty"`
	Problems []string `yaml:"problems,omitempty"`
}

// BuildReport checks every scan as stored, before any startup repair.
func BuildReport(scans []*domain.Scan) Report {
	sorted := slices.Clone(scans)
	slices.SortFunc(sorted, func(a, b *domain.Scan) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	var report Report
	for _, scan := range sorted {
		sr := ScanReport{
			ID:     scan.ID,
			Name:   scan.Name,
			Pages:  scan.PageCount(),
			Orders: make([]int, 0, len(scan.Pages)),
		}

		for _, p := range scan.Pages {
			sr.Orders = append(sr.Orders, p.Order)
			if !p.HasImage() {
				sr.Missing++
			}
			if p.ScanID != scan.ID {
				sr.Problems = append(sr.Problems, fmt.Sprintf("page %s claims scan %s", p.ID, p.ScanID))
			}
		}
		slices.Sort(sr.Orders)

		if scan.IsEmpty() {
			sr.Problems = append(sr.Problems, "scan has no pages")
		} else if err := scan.ValidateOrder(); err != nil {
			sr.Problems = append(sr.Problems, err.Error())
		}

		report.Totals.Scans++
		report.Totals.Pages += sr.Pages
		report.Totals.Problems += len(sr.Problems)
		report.Scans = append(report.Scans, sr)
	}

	return report
}

// WriteText renders the report as aligned plain text.
func WriteText(w io.Writer, r Report) error {
	var b strings.Builder
	for _, s := range r.Scans {
		status := "ok"
		if len(s.Problems) > 0 {
			status = "PROBLEM"
		}
		fmt.Fprintf(&b, "%-28s %-7s %3d pages  %s\n", s.ID, status, s.Pages, displayName(s.Name))
		for _, p := range s.Problems {
			fmt.Fprintf(&b, "    - %s\n", p)
		}
		if s.Missing > 0 {
			fmt.Fprintf(&b, "    - %d page(s) without image data\n", s.Missing)
		}
	}
	fmt.Fprintf(&b, "\n%d scans, %d pages, %d problems\n", r.Totals.Scans, r.Totals.Pages, r.Totals.Problems)

	_, err := io.WriteString(w, b.String())
	return err
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	var (
		format string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List stored scans and check their page order",
		Long: `Inspect reads every scan as stored and reports page counts and order keys.

A scan's page order keys must be exactly 0..N-1. The server repairs
violations at startup; inspect only reports them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := root.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			scans, err := s.repo.LoadScans(cmd.Context())
			if err != nil {
				return fmt.Errorf("load scans: %w", err)
			}

			report := BuildReport(scans)

			switch format {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				if err := enc.Close(); err != nil {
					return err
				}
			case "text":
				if err := WriteText(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown output format %q (want text or yaml)", format)
			}

			if strict && report.Totals.Problems > 0 {
				return fmt.Errorf("%d problem(s) found", report.Totals.Problems)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format (text, yaml)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any problem is found")

	return cmd
}
