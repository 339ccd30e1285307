// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fs
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Parallel()

	opts := LoadOptions{ConfigDirPath: "/cfg", Fs: memFs(t, nil)}
	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	path, err := FilePath(opts)
	if err != nil {
		t.Fatalf("FilePath() error = %v", err)
	}
	if path != "" {
		t.Errorf("FilePath() = %q, want empty", path)
	}
}

func TestLoad_FileFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "yaml",
			file: "/cfg/config.yaml",
			body: "log_level: debug\ndefault_compression: high\nbuild:\n  default_configuration: release\ninstall:\n  root: /opt/ncc\n",
		},
		{
			name: "yml",
			file: "/cfg/config.yml",
			body: "log_level: debug\ndefault_compression: high\nbuild:\n  default_configuration: release\ninstall:\n  root: /opt/ncc\n",
		},
		{
			name: "toml",
			file: "/cfg/config.toml",
			body: "log_level = \"debug\"\ndefault_compression = \"high\"\n\n[build]\ndefault_configuration = \"release\"\n\n[install]\nroot = \"/opt/ncc\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := LoadOptions{ConfigDirPath: "/cfg", Fs: memFs(t, map[string]string{tt.file: tt.body})}
			cfg, err := NewProvider().Load(context.Background(), opts)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			want := DefaultConfig()
			want.LogLevel = LogLevelDebug
			want.DefaultCompression = "high"
			want.Build.DefaultConfiguration = "release"
			want.Install.Root = "/opt/ncc"
			if diff := cmp.Diff(want, cfg); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}

			path, err := FilePath(opts)
			if err != nil {
				t.Fatalf("FilePath() error = %v", err)
			}
			if path != tt.file {
				t.Errorf("FilePath() = %q, want %q", path, tt.file)
			}
		})
	}
}

func TestLoad_YAMLPreferredOverTOML(t *testing.T) {
	t.Parallel()

	fs := memFs(t, map[string]string{
		"/cfg/config.yaml": "log_level: warn\n",
		"/cfg/config.toml": "log_level = \"error\"\n",
	})
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: "/cfg", Fs: fs})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != LogLevelWarn {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, LogLevelWarn)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	_, err := NewProvider().Load(context.Background(), LoadOptions{
		ConfigFilePath: "/nowhere/config.yaml",
		Fs:             memFs(t, nil),
	})
	if err == nil {
		t.Fatal("Load() expected error for missing explicit file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v, want mention of missing file", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Parallel()

	fs := memFs(t, map[string]string{
		"/cfg/config.yaml": "log_level: loud\ndefault_compression: ultra\n",
	})
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: "/cfg", Fs: fs})
	if err == nil {
		t.Fatal("Load() expected validation error")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error should wrap ErrInvalidConfig, got: %v", err)
	}

	var cfgErr *InvalidConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error should be *InvalidConfigError, got: %T", err)
	}
	if len(cfgErr.FieldErrors) != 2 {
		t.Fatalf("expected 2 field errors, got %d: %v", len(cfgErr.FieldErrors), cfgErr.FieldErrors)
	}
	if !errors.Is(cfgErr.FieldErrors[0], ErrInvalidLogLevel) {
		t.Errorf("first field error should wrap ErrInvalidLogLevel, got: %v", cfgErr.FieldErrors[0])
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("NCC_LOG_LEVEL", "error")
	t.Setenv("NCC_INSTALL_ROOT", "/srv/ncc")

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: "/cfg", Fs: memFs(t, nil)})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != LogLevelError {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, LogLevelError)
	}
	if cfg.Install.Root != "/srv/ncc" {
		t.Errorf("Install.Root = %q, want /srv/ncc", cfg.Install.Root)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{Fs: memFs(t, nil)}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestConfig_ValidateEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		encoding string
		wantErr  bool
	}{
		{"b64enc", false},
		{"plain", false},
		{"binary", false},
		{"ast", true},
		{"gzip", true},
	}
	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.Build.ComponentEncoding = tt.encoding
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	out, err := Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{"log_level: info", "default_compression: none", "root: /usr/local/ncc"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("Marshal() output missing %q:\n%s", want, out)
		}
	}
	if _, err := Marshal(nil); err == nil {
		t.Error("Marshal(nil) expected error")
	}
}
