// Package metadata provides ingest.MetadataProvider implementations.
package metadata

import (
	"context"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"photo-ingest/internal/ingest"
)

// ExifProvider reads embedded EXIF data. It understands JPEG and
// TIFF-based containers, which covers most RAW formats' preview IFDs.
type ExifProvider struct{}

func NewExifProvider() *ExifProvider { return &ExifProvider{} }

func (*ExifProvider) Name() string    { return "exif" }
func (*ExifProvider) Available() bool { return true }

func (p *ExifProvider) Extract(ctx context.Context, path string) (ingest.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ingest.ExtractionError{Path: path, Provider: p.Name(), Err: err}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, &ingest.ExtractionError{Path: path, Provider: p.Name(), Err: err}
	}

	md := ingest.Metadata{}
	if err := x.Walk(fieldCollector(md)); err != nil {
		return nil, &ingest.ExtractionError{Path: path, Provider: p.Name(), Err: err}
	}
	// Normalise to the camera's original timestamp when only DateTime is set.
	if _, ok := md[ingest.FieldDateTimeOriginal]; !ok {
		if t, err := x.DateTime(); err == nil {
			md[ingest.FieldDateTimeOriginal] = t.Format(ingest.ExifTimeLayout)
		}
	}
	return md, nil
}

type fieldCollector ingest.Metadata

func (c fieldCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	var v string
	if tag.Format() == tiff.StringVal {
		s, err := tag.StringVal()
		if err != nil {
			return nil
		}
		v = s
	} else {
		v = tag.String()
	}
	v = strings.TrimSpace(strings.Trim(v, "\x00"))
	if v != "" {
		c[string(name)] = v
	}
	return nil
}
