package circuits

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vocdoni/rln-sandbox/config"
	"github.com/vocdoni/rln-sandbox/types"
)

// ErrArtifactsNotFound is returned when an artifact path provided explicitly
// does not exist.
var ErrArtifactsNotFound = errors.New("circuit artifacts not found")

// ErrMissingArtifactHash is returned when a remote artifact has no hash to
// address it in the download cache.
var ErrMissingArtifactHash = errors.New("remote artifact without hash")

// RemoteArtifact locates an artifact to download. Hash is the sha256 of the
// content and names the file in the download cache under BaseDir.
type RemoteArtifact struct {
	URL  string
	Hash types.HexBytes
}

// ArtifactsConfig holds the artifacts of a circuit provided by the caller,
// as content, as file paths or as remote artifacts. Content takes
// precedence over paths, and paths over the default directory. Remote
// artifacts are only used when nothing was found locally.
type ArtifactsConfig struct {
	WitnessCalculator     []byte
	ProvingKey            []byte
	VerificationKey       []byte
	WitnessCalculatorPath string
	ProvingKeyPath        string
	VerificationKeyPath   string

	WitnessCalculatorRemote RemoteArtifact
	ProvingKeyRemote        RemoteArtifact
	VerificationKeyRemote   RemoteArtifact
}

// RLNArtifactsDir returns the directory of the default RLN artifacts for the
// tree depth.
func RLNArtifactsDir(depth int) string {
	return filepath.Join(BaseDir, config.RLNCircuitDir, strconv.Itoa(depth))
}

// WithdrawArtifactsDir returns the directory of the default withdraw
// artifacts.
func WithdrawArtifactsDir() string {
	return filepath.Join(BaseDir, config.WithdrawCircuitDir)
}

// ResolveRLNArtifacts resolves and loads the RLN artifacts. Each artifact is
// taken from the config content, then the config path, then the default
// directory of the tree depth and finally downloaded from its remote
// location. Artifacts found nowhere are left unset, so
// the returned set may only be able to verify, or to do nothing at all.
func ResolveRLNArtifacts(ctx context.Context, cfg *ArtifactsConfig, depth int) (*CircuitArtifacts, error) {
	return resolveArtifacts(ctx, cfg, RLNArtifactsDir(depth),
		config.RLNWitnessCalculatorFile, config.RLNProvingKeyFile, config.RLNVerificationKeyFile)
}

// ResolveWithdrawArtifacts resolves and loads the withdraw artifacts with
// the same precedence as ResolveRLNArtifacts.
func ResolveWithdrawArtifacts(ctx context.Context, cfg *ArtifactsConfig) (*CircuitArtifacts, error) {
	return resolveArtifacts(ctx, cfg, WithdrawArtifactsDir(),
		config.WithdrawWitnessCalculatorFile, config.WithdrawProvingKeyFile, config.WithdrawVerificationKeyFile)
}

func resolveArtifacts(ctx context.Context, cfg *ArtifactsConfig, dir, wasmFile, zkeyFile, vkeyFile string) (*CircuitArtifacts, error) {
	if cfg == nil {
		cfg = &ArtifactsConfig{}
	}
	wasm, err := resolveArtifact(cfg.WitnessCalculator, cfg.WitnessCalculatorPath,
		filepath.Join(dir, wasmFile), cfg.WitnessCalculatorRemote)
	if err != nil {
		return nil, err
	}
	zkey, err := resolveArtifact(cfg.ProvingKey, cfg.ProvingKeyPath,
		filepath.Join(dir, zkeyFile), cfg.ProvingKeyRemote)
	if err != nil {
		return nil, err
	}
	vkey, err := resolveArtifact(cfg.VerificationKey, cfg.VerificationKeyPath,
		filepath.Join(dir, vkeyFile), cfg.VerificationKeyRemote)
	if err != nil {
		return nil, err
	}
	artifacts := NewCircuitArtifacts(wasm, zkey, vkey)
	if err := artifacts.LoadAll(ctx); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func resolveArtifact(content []byte, path, defaultPath string, remote RemoteArtifact) (*Artifact, error) {
	switch {
	case len(content) > 0:
		return &Artifact{Content: content}, nil
	case path != "":
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrArtifactsNotFound, path)
		}
		return &Artifact{Path: path}, nil
	}
	if _, err := os.Stat(defaultPath); err == nil {
		return &Artifact{Path: defaultPath}, nil
	}
	if remote.URL == "" {
		return nil, nil
	}
	if len(remote.Hash) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifactHash, remote.URL)
	}
	return &Artifact{RemoteURL: remote.URL, Hash: remote.Hash}, nil
}
