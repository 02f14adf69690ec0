package ollama

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/23skdu/contextwatch/internal/logger"
)

const (
	DefaultTag       = "latest"
	DefaultRegistry  = "registry.ollama.ai"
	DefaultNamespace = "library"
	MediaTypeModel   = "application/vnd.ollama.image.model"
)

type Manifest struct {
	SchemaVersion int     `json:"schemaVersion"`
	Layers        []Layer `json:"layers"`
}

type Layer struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

// ModelRef is a parsed ollama model name.
type ModelRef struct {
	Registry  string
	Namespace string
	Name      string
	Tag       string
}

func (r ModelRef) String() string {
	return fmt.Sprintf("%s/%s/%s:%s", r.Registry, r.Namespace, r.Name, r.Tag)
}

// ParseModelName accepts "name", "name:tag", "namespace/name:tag" and
// "registry/namespace/name:tag".
func ParseModelName(modelName string) (ModelRef, error) {
	ref := ModelRef{Registry: DefaultRegistry, Namespace: DefaultNamespace, Tag: DefaultTag}

	path := modelName
	if i := strings.LastIndex(modelName, ":"); i > strings.LastIndex(modelName, "/") {
		path, ref.Tag = modelName[:i], modelName[i+1:]
	}

	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		ref.Name = parts[0]
	case 2:
		ref.Namespace, ref.Name = parts[0], parts[1]
	case 3:
		ref.Registry, ref.Namespace, ref.Name = parts[0], parts[1], parts[2]
	default:
		return ModelRef{}, fmt.Errorf("invalid model name %q", modelName)
	}
	for _, p := range []string{ref.Registry, ref.Namespace, ref.Name, ref.Tag} {
		if p == "" || p == "." || p == ".." {
			return ModelRef{}, fmt.Errorf("invalid model name %q", modelName)
		}
	}
	return ref, nil
}

func GetOllamaDir() (string, error) {
	// Check for OLLAMA_MODELS env var
	if env := os.Getenv("OLLAMA_MODELS"); env != "" {
		return env, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ollama", "models"), nil
}

// Resolve returns modelRef itself when it names an existing file, and
// otherwise looks it up as an ollama model name.
func Resolve(modelRef string) (string, error) {
	if info, err := os.Stat(modelRef); err == nil && !info.IsDir() {
		return modelRef, nil
	}
	if strings.HasSuffix(strings.ToLower(modelRef), ".gguf") {
		return "", fmt.Errorf("model file not found: %s", modelRef)
	}
	return ResolveModelPath(modelRef)
}

// ResolveModelPath finds the GGUF blob path for an ollama model name such as
// "llama3", "llama3:8b" or "library/mistral:latest".
func ResolveModelPath(modelName string) (string, error) {
	ref, err := ParseModelName(modelName)
	if err != nil {
		return "", err
	}

	baseDir, err := GetOllamaDir()
	if err != nil {
		return "", err
	}

	// ~/.ollama/models/manifests/<registry>/<namespace>/<name>/<tag>
	manifestPath := filepath.Join(baseDir, "manifests", ref.Registry, ref.Namespace, ref.Name, ref.Tag)
	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("model manifest not found at %s", manifestPath)
	}
	if err != nil {
		return "", err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("parse manifest %s: %w", manifestPath, err)
	}

	var blobDigest string
	for _, l := range m.Layers {
		if l.MediaType == MediaTypeModel {
			blobDigest = l.Digest
			break
		}
	}
	if blobDigest == "" {
		return "", fmt.Errorf("no model layer found in manifest")
	}

	// Digest "sha256:hash" is stored as blobs/sha256-hash.
	blobName := strings.Replace(blobDigest, ":", "-", 1)
	blobPath := filepath.Join(baseDir, "blobs", blobName)
	if _, err := os.Stat(blobPath); os.IsNotExist(err) {
		return "", fmt.Errorf("model blob not found at %s", blobPath)
	}

	logger.Log.Debug("Resolved ollama model", "model", ref.String(), "blob", blobPath)
	return blobPath, nil
}
