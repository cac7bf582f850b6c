package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func findingCodes(r Report) map[string]string {
	codes := map[string]string{}
	for _, f := range r.Findings {
		codes[f.Code] = f.Level
	}
	return codes
}

func TestRunReportsMissingConfigAsWarn(t *testing.T) {
	tmp := t.TempDir()
	svc := &Service{
		ConfigPath: filepath.Join(tmp, "absent", "config.toml"),
		StateRoot:  filepath.Join(tmp, "state"),
	}
	report := svc.Run(context.Background())
	codes := findingCodes(report)
	if codes["DOC_CONFIG_MISSING"] != "warn" {
		t.Fatalf("expected DOC_CONFIG_MISSING warn, got %+v", report.Findings)
	}
}

func TestRunReportsInvalidConfigAsError(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("version = 9\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	svc := &Service{
		ConfigPath: cfgPath,
		StateRoot:  filepath.Join(tmp, "state"),
	}
	report := svc.Run(context.Background())
	codes := findingCodes(report)
	if codes["DOC_CONFIG_INVALID"] != "error" {
		t.Fatalf("expected DOC_CONFIG_INVALID error, got %+v", report.Findings)
	}
	if report.Healthy {
		t.Fatalf("report should be unhealthy with an error finding")
	}
}

func TestRunReportsUnwritableStateRoot(t *testing.T) {
	tmp := t.TempDir()
	blocked := filepath.Join(tmp, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("create blocking file: %v", err)
	}
	svc := &Service{
		ConfigPath: filepath.Join(tmp, "config.toml"),
		StateRoot:  filepath.Join(blocked, "state"),
	}
	report := svc.Run(context.Background())
	codes := findingCodes(report)
	if codes["DOC_STATE_UNWRITABLE"] != "error" {
		t.Fatalf("expected DOC_STATE_UNWRITABLE error, got %+v", report.Findings)
	}
}
