package out_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	sequenceout "studyrun/internal/modules/sequence/adapter/out"
	"studyrun/internal/modules/sequence/domain"
)

const catalogYAML = `terminal: EXIT
devices:
  desktop: [A, B, EXIT]
  mobile: [A, EXIT]
tasks:
  - code: A
    name: Alpha
    kind: embedded-iframe
    estimated_duration: 4m
  - code: B
    name: Beta
    kind: external-redirect
    estimated_duration: 90s
    skippable: true
    exemption_tag: non_signer
  - code: EXIT
    name: Exit survey
    kind: embedded-iframe
`

func TestYAMLCatalogLoadsFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(catalogYAML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	catalog, err := sequenceout.NewYAMLCatalogProvider(path).Catalog(context.Background())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if catalog.Terminal != "EXIT" {
		t.Fatalf("expected EXIT terminal, got %s", catalog.Terminal)
	}
	b, ok := catalog.Task("B")
	if !ok || b.Kind != domain.KindExternal || b.EstimatedDuration != 90*time.Second || b.ExemptionTag != "non_signer" {
		t.Fatalf("task B not decoded: %+v", b)
	}
	if got := catalog.TasksFor(domain.DeviceMobile); len(got) != 2 {
		t.Fatalf("expected 2 mobile tasks, got %v", got)
	}
}

func TestYAMLCatalogDefaultsAndErrors(t *testing.T) {
	t.Parallel()
	catalog, err := sequenceout.NewYAMLCatalogProvider("").Catalog(context.Background())
	if err != nil || catalog.Terminal != "DEMO" {
		t.Fatalf("expected default catalog, got %+v err=%v", catalog, err)
	}
	if _, err := sequenceout.NewYAMLCatalogProvider(filepath.Join(t.TempDir(), "missing.yaml")).Catalog(context.Background()); err == nil {
		t.Fatalf("missing file must fail")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("terminal: NOPE\ndevices:\n  desktop: [NOPE]\n"), 0o644); err != nil {
		t.Fatalf("write bad catalog: %v", err)
	}
	if _, err := sequenceout.NewYAMLCatalogProvider(bad).Catalog(context.Background()); err == nil {
		t.Fatalf("undefined terminal must fail validation")
	}
}
