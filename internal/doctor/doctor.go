// Package doctor checks that the host can generate and build flatpaks.
package doctor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Grouvya/flatpak-manifest-generator/internal/config"
	"github.com/Grouvya/flatpak-manifest-generator/internal/flatpak"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Report struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
	Tools    []string  `json:"tools,omitempty"`
}

type Service struct {
	ConfigPath string
	StateRoot  string
	Client     *flatpak.Client
}

func (s *Service) Run(ctx context.Context) Report {
	findings := []Finding{}
	tools := []string{}

	remote := "flathub"
	if _, err := os.Stat(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_MISSING", Level: "warn", Message: err.Error()})
	} else if cfg, err := config.Load(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_INVALID", Level: "error", Message: err.Error()})
	} else if cfg.Flatpak.Remote != "" {
		remote = cfg.Flatpak.Remote
	}

	if err := os.MkdirAll(s.StateRoot, 0o755); err != nil {
		findings = append(findings, Finding{Code: "DOC_STATE_UNWRITABLE", Level: "error", Message: err.Error()})
	} else {
		probe := filepath.Join(s.StateRoot, ".doctor-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			findings = append(findings, Finding{Code: "DOC_STATE_UNWRITABLE", Level: "error", Message: err.Error()})
		} else {
			os.Remove(probe)
		}
	}

	flatpakOK := false
	if path, err := flatpak.FindExecutable("flatpak"); err != nil {
		findings = append(findings, Finding{Code: "DOC_FLATPAK_MISSING", Level: "error", Message: err.Error()})
	} else {
		flatpakOK = true
		tools = append(tools, path)
	}
	if path, err := flatpak.FindExecutable("flatpak-builder"); err != nil {
		findings = append(findings, Finding{Code: "DOC_BUILDER_MISSING", Level: "error", Message: err.Error()})
	} else {
		tools = append(tools, path)
	}

	if flatpakOK && s.Client != nil {
		if ok, err := s.Client.HasRemote(ctx, remote); err != nil {
			findings = append(findings, Finding{Code: "DOC_REMOTES_FAIL", Level: "warn", Message: err.Error()})
		} else if !ok {
			findings = append(findings, Finding{
				Code:    "DOC_REMOTE_MISSING",
				Level:   "warn",
				Message: remote + " remote not configured; run: " + flatpak.RemediationMissingRemote,
			})
		}
	}

	if _, err := flatpak.FindTerminal(nil); err != nil {
		findings = append(findings, Finding{Code: "DOC_TERMINAL_MISSING", Level: "warn", Message: err.Error()})
	}

	healthy := true
	for _, f := range findings {
		if f.Level == "error" {
			healthy = false
			break
		}
	}
	return Report{Healthy: healthy, Findings: findings, Tools: tools}
}
