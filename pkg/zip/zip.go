// Package zip assembles catalog pack archives for download.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Asset is one file destined for the archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchivePack writes all assets into a single zip and returns its bytes.
func ArchivePack(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range assets {
		w, err := zw.Create(asset.Filename)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}
