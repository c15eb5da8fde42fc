package ingest

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var mtime = time.Date(2023, 12, 31, 23, 0, 0, 0, time.Local)

func input(path string, status DuplicateStatus, md Metadata) PlanInput {
	return PlanInput{
		File:           ScannedFile{Path: path, Size: 10, ModTime: mtime, Type: TypeJPEG},
		Classification: &Classification{Status: status, ExactHash: "h-" + filepath.Base(path)},
		Metadata:       md,
	}
}

func TestOrganizationPlanner_Plan(t *testing.T) {
	resolver := NewDeviceResolver(DeviceRules{Mappings: map[string]string{"ILCE-7M3": "A7III"}})
	sony := Metadata{"Model": "ILCE-7M3", "DateTimeOriginal": "2024:06:01 08:30:00"}
	archive := filepath.Join("/archive")

	t.Run("destination layout", func(t *testing.T) {
		p := NewOrganizationPlanner(resolver, SimilarTreatAsNew)
		ops, err := p.Plan([]PlanInput{input("/card/DSC1.JPG", StatusNew, sony)}, "Beach Day", archive)
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(archive, "2024", "2024-06-01_Beach_Day", "A7III", "DSC1.JPG")
		if ops[0].DestPath != want {
			t.Errorf("DestPath = %q, want %q", ops[0].DestPath, want)
		}
		if ops[0].Kind != KindOrganized || ops[0].DateEstimated {
			t.Errorf("op = %+v", ops[0])
		}
	})

	t.Run("no event and estimated date", func(t *testing.T) {
		p := NewOrganizationPlanner(resolver, SimilarTreatAsNew)
		ops, err := p.Plan([]PlanInput{input("/card/x.jpg", StatusNew, nil)}, "", archive)
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(archive, "2023", "2023-12-31", UnknownDevice, "x.jpg")
		if ops[0].DestPath != want {
			t.Errorf("DestPath = %q, want %q", ops[0].DestPath, want)
		}
		if !ops[0].DateEstimated {
			t.Error("DateEstimated = false for mtime fallback")
		}
	})

	t.Run("status decides destination", func(t *testing.T) {
		tests := []struct {
			status DuplicateStatus
			policy SimilarPolicy
			want   bool
		}{
			{StatusNew, SimilarSkip, true},
			{StatusDuplicate, SimilarTreatAsNew, false},
			{StatusSimilar, SimilarTreatAsNew, true},
			{StatusSimilar, SimilarSkip, false},
		}
		for _, tt := range tests {
			p := NewOrganizationPlanner(resolver, tt.policy)
			ops, err := p.Plan([]PlanInput{input("/card/a.jpg", tt.status, sony)}, "", archive)
			if err != nil {
				t.Fatal(err)
			}
			if got := ops[0].DestPath != ""; got != tt.want {
				t.Errorf("%s/%s: has destination = %v, want %v", tt.status, tt.policy, got, tt.want)
			}
			if ops[0].Status != tt.status {
				t.Errorf("Status = %s, want %s", ops[0].Status, tt.status)
			}
		}
	})

	t.Run("collisions get suffixes in path order", func(t *testing.T) {
		p := NewOrganizationPlanner(resolver, SimilarTreatAsNew)
		inputs := []PlanInput{
			input("/card/B/DSC1.jpg", StatusNew, sony),
			input("/card/A/dsc1.JPG", StatusNew, sony),
			input("/card/C/DSC1.jpg", StatusNew, sony),
		}
		ops, err := p.Plan(inputs, "", archive)
		if err != nil {
			t.Fatal(err)
		}
		dir := filepath.Join(archive, "2024", "2024-06-01", "A7III")
		want := []string{
			filepath.Join(dir, "dsc1.JPG"),
			filepath.Join(dir, "DSC1_01.jpg"),
			filepath.Join(dir, "DSC1_02.jpg"),
		}
		for i, op := range ops {
			if op.DestPath != want[i] {
				t.Errorf("ops[%d] (%s) = %q, want %q", i, op.Source.Path, op.DestPath, want[i])
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		p := NewOrganizationPlanner(resolver, SimilarTreatAsNew)
		inputs := []PlanInput{
			input("/card/2.jpg", StatusNew, sony),
			input("/card/1.jpg", StatusSimilar, sony),
			input("/card/3.jpg", StatusDuplicate, sony),
		}
		a, err := p.Plan(inputs, "trip", archive)
		if err != nil {
			t.Fatal(err)
		}
		inputs[0], inputs[2] = inputs[2], inputs[0]
		b, err := p.Plan(inputs, "trip", archive)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Error("plans differ for permuted input")
		}
	})

	t.Run("no archive root", func(t *testing.T) {
		p := NewOrganizationPlanner(resolver, SimilarTreatAsNew)
		ops, err := p.Plan([]PlanInput{input("/card/a.jpg", StatusNew, sony)}, "", "")
		if err != nil {
			t.Fatal(err)
		}
		if ops[0].DestPath != "" || ops[0].HasPlacement() {
			t.Errorf("DestPath = %q without archive root", ops[0].DestPath)
		}
		if ops[0].DeviceCode != "A7III" {
			t.Errorf("DeviceCode = %q", ops[0].DeviceCode)
		}
	})

	t.Run("unclassified input", func(t *testing.T) {
		p := NewOrganizationPlanner(resolver, SimilarTreatAsNew)
		in := input("/card/a.jpg", StatusNew, nil)
		in.Classification = nil
		_, err := p.Plan([]PlanInput{in}, "", archive)
		var planErr *PlanningError
		if !errors.As(err, &planErr) {
			t.Fatalf("Plan() error = %v, want PlanningError", err)
		}
	})
}

func TestSanitizeEvent(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"Beach Day":       "Beach_Day",
		"  trip/2024  ":   "trip_2024",
		"..hidden..":      "hidden",
		`what: "is" this?`: "what_is_this",
	}
	for in, want := range tests {
		if got := sanitizeEvent(in); got != want {
			t.Errorf("sanitizeEvent(%q) = %q, want %q", in, got, want)
		}
	}
}
