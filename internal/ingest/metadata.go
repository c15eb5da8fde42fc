package ingest

import (
	"context"
	"strings"
	"time"
)

// Metadata is a flat mapping of field name to value as reported by a provider.
type Metadata map[string]string

// Well-known metadata fields.
const (
	FieldMake             = "Make"
	FieldModel            = "Model"
	FieldLensModel        = "LensModel"
	FieldDateTimeOriginal = "DateTimeOriginal"
	FieldCreateDate       = "CreateDate"
	FieldDateTime         = "DateTime"
	FieldFileModifyDate   = "FileModifyDate"
	FieldFileSize         = "FileSize"
	FieldFileName         = "FileName"
	FieldISO              = "ISO"
	FieldFNumber          = "FNumber"
	FieldExposureTime     = "ExposureTime"
	FieldFocalLength      = "FocalLength"
)

// ExifTimeLayout is the EXIF "YYYY:MM:DD HH:MM:SS" layout.
const ExifTimeLayout = "2006:01:02 15:04:05"

// MetadataProvider extracts metadata from a file.
type MetadataProvider interface {
	Name() string
	Available() bool
	Extract(ctx context.Context, path string) (Metadata, error)
}

// Get looks a field up case-insensitively.
func (m Metadata) Get(field string) (string, bool) {
	if v, ok := m[field]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	return "", false
}

// CameraModel returns the first non-empty camera model field.
func (m Metadata) CameraModel() string {
	for _, f := range []string{FieldModel, "Camera Model Name", "Camera Model"} {
		if v, ok := m.Get(f); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (m Metadata) LensModel() string {
	v, _ := m.Get(FieldLensModel)
	return strings.TrimSpace(v)
}

// captureLayouts are tried in order for each date field.
var captureLayouts = []string{ExifTimeLayout, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// CaptureTime returns the capture timestamp and whether it was estimated.
// DateTimeOriginal, CreateDate and DateTime are tried in that order; when
// none parses the fallback (the file modification time) is returned.
func (m Metadata) CaptureTime(fallback time.Time) (t time.Time, estimated bool) {
	for _, field := range []string{FieldDateTimeOriginal, FieldCreateDate, FieldDateTime} {
		v, ok := m.Get(field)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		for _, layout := range captureLayouts {
			if parsed, err := time.ParseInLocation(layout, v, time.Local); err == nil {
				return parsed, false
			}
		}
	}
	return fallback, true
}
