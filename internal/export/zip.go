package export

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// writeZIP stores each page as page-001.jpg, page-002.jpg, ... in order.
// JPEG does not compress further, so entries are stored.
func writeZIP(w io.Writer, pages []pageImage) error {
	zw := zip.NewWriter(w)
	now := time.Now()

	for i, p := range pages {
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     fmt.Sprintf("page-%03d.jpg", i+1),
			Method:   zip.Store,
			Modified: now,
		})
		if err != nil {
			return err
		}
		if _, err := f.Write(p.JPEG); err != nil {
			return err
		}
	}

	return zw.Close()
}
