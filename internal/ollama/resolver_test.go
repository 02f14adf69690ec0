package ollama

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseModelName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ModelRef
		wantErr bool
	}{
		{"simple name", "llama3", ModelRef{DefaultRegistry, DefaultNamespace, "llama3", "latest"}, false},
		{"with tag", "llama3:8b", ModelRef{DefaultRegistry, DefaultNamespace, "llama3", "8b"}, false},
		{"with complex tag", "model:v1.0", ModelRef{DefaultRegistry, DefaultNamespace, "model", "v1.0"}, false},
		{"namespace", "acme/tiny:q4", ModelRef{DefaultRegistry, "acme", "tiny", "q4"}, false},
		{"registry with port", "hub.local:5000/acme/tiny", ModelRef{"hub.local:5000", "acme", "tiny", "latest"}, false},
		{"empty", "", ModelRef{}, true},
		{"empty tag", "llama3:", ModelRef{}, true},
		{"traversal", "../etc:passwd", ModelRef{}, true},
		{"too deep", "a/b/c/d", ModelRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModelName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModelName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseModelName(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestModelRefString(t *testing.T) {
	ref, err := ParseModelName("llama3")
	if err != nil {
		t.Fatal(err)
	}
	if got := ref.String(); got != "registry.ollama.ai/library/llama3:latest" {
		t.Errorf("unexpected String(): %s", got)
	}
}

func TestGetOllamaDirDefault(t *testing.T) {
	t.Setenv("OLLAMA_MODELS", "")

	dir, err := GetOllamaDir()
	if err != nil {
		t.Fatalf("GetOllamaDir() failed: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() failed: %v", err)
	}
	if expected := filepath.Join(home, ".ollama", "models"); dir != expected {
		t.Errorf("expected %s, got %s", expected, dir)
	}
}

func TestGetOllamaDirEnvOverride(t *testing.T) {
	t.Setenv("OLLAMA_MODELS", "/custom/ollama/models")

	dir, err := GetOllamaDir()
	if err != nil {
		t.Fatalf("GetOllamaDir() failed: %v", err)
	}
	if dir != "/custom/ollama/models" {
		t.Errorf("expected /custom/ollama/models, got %s", dir)
	}
}

// fakeOllama lays out a models dir with one manifest and optionally its blob.
func fakeOllama(t *testing.T, name, tag string, layers []Layer, writeBlob bool) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("OLLAMA_MODELS", base)

	manifestDir := filepath.Join(base, "manifests", DefaultRegistry, DefaultNamespace, name)
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(Manifest{SchemaVersion: 2, Layers: layers})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(manifestDir, tag), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if writeBlob {
		if err := os.MkdirAll(filepath.Join(base, "blobs"), 0o755); err != nil {
			t.Fatal(err)
		}
		for _, l := range layers {
			blob := filepath.Join(base, "blobs", strings.Replace(l.Digest, ":", "-", 1))
			if err := os.WriteFile(blob, []byte("GGUF"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return base
}

func TestResolveModelPath(t *testing.T) {
	base := fakeOllama(t, "tiny", "latest", []Layer{
		{MediaType: "application/vnd.ollama.image.config", Digest: "sha256:cfg", Size: 10},
		{MediaType: MediaTypeModel, Digest: "sha256:abc123", Size: 4},
	}, true)

	path, err := ResolveModelPath("tiny")
	if err != nil {
		t.Fatalf("ResolveModelPath failed: %v", err)
	}
	if want := filepath.Join(base, "blobs", "sha256-abc123"); path != want {
		t.Errorf("expected %s, got %s", want, path)
	}
}

func TestResolveModelPathErrors(t *testing.T) {
	fakeOllama(t, "nolayer", "latest", []Layer{{MediaType: "application/vnd.ollama.image.config", Digest: "sha256:cfg"}}, true)
	if _, err := ResolveModelPath("nolayer"); err == nil || !strings.Contains(err.Error(), "no model layer") {
		t.Errorf("expected missing layer error, got %v", err)
	}

	fakeOllama(t, "noblob", "latest", []Layer{{MediaType: MediaTypeModel, Digest: "sha256:gone"}}, false)
	if _, err := ResolveModelPath("noblob"); err == nil || !strings.Contains(err.Error(), "blob not found") {
		t.Errorf("expected missing blob error, got %v", err)
	}
	if _, err := ResolveModelPath("noblob:other"); err == nil || !strings.Contains(err.Error(), "manifest not found") {
		t.Errorf("expected missing manifest error, got %v", err)
	}
}

func TestResolvePrefersExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Resolve(path)
	if err != nil || got != path {
		t.Errorf("Resolve(%s) = %s, %v", path, got, err)
	}

	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.gguf")); err == nil || !strings.Contains(err.Error(), "model file not found") {
		t.Errorf("expected file not found error, got %v", err)
	}
}
