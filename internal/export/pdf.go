package export

import (
	"bytes"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"
)

var jpegOptions = fpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}

// writePDF writes one page per image, each page sized to its image with one
// point per pixel.
func writePDF(w io.Writer, pages []pageImage) error {
	first := pages[0]
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: float64(first.Width), Ht: float64(first.Height)},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("Scanix", true)

	for i, p := range pages {
		name := "page-" + strconv.Itoa(i+1)
		wd, ht := float64(p.Width), float64(p.Height)

		pdf.RegisterImageOptionsReader(name, jpegOptions, bytes.NewReader(p.JPEG))
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: wd, Ht: ht})
		pdf.ImageOptions(name, 0, 0, wd, ht, false, jpegOptions, 0, "")

		if err := pdf.Error(); err != nil {
			return err
		}
	}

	return pdf.Output(w)
}
