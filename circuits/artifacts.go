package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vocdoni/rln-sandbox/config"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/types"
)

// CheckHashes is a flag that determines if the hashes of the artifacts should
// be checked when they are loaded or downloaded. It can be set to false by
// setting the RLN_CHECK_HASHES environment variable to false or 0.
var CheckHashes = true

// BaseDir is the path where the artifacts are expected to be found, both the
// depth-keyed default RLN artifacts and the hash-addressed download cache.
// Defaults to the env var RLN_ARTIFACTS_DIR or the user cache directory.
var BaseDir string

func init() {
	if checkHashes := os.Getenv(config.CheckHashesEnv); checkHashes != "" {
		if strings.ToLower(checkHashes) == "false" || checkHashes == "0" {
			CheckHashes = false
		}
	}
	if dir := os.Getenv(config.ArtifactsDirEnv); dir != "" {
		BaseDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			log.Warnf("unable to access user home directory, using temporary directory: %v", err)
			BaseDir = filepath.Join(os.TempDir(), config.DefaultArtifactsDirName)
		} else {
			BaseDir = filepath.Join(home, ".cache", config.DefaultArtifactsDirName)
		}
	}
}

// Artifact holds a circuit artifact (witness calculator, proving key or
// verification key). Its content can be provided directly, read from a local
// path, or loaded from the hash-addressed cache under BaseDir, downloading it
// from RemoteURL if needed.
type Artifact struct {
	Path      string
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// Load method makes sure the artifact content is available. It tries, in
// order, the content already set, the local path, the hash-addressed cache
// and finally the remote URL. Hashes are checked when provided.
func (k *Artifact) Load(ctx context.Context) error {
	if len(k.Content) != 0 {
		return nil
	}
	if k.Path != "" {
		content, err := os.ReadFile(k.Path)
		if err != nil {
			return fmt.Errorf("error reading artifact %s: %w", k.Path, err)
		}
		if err := checkHash(content, k.Hash); err != nil {
			return fmt.Errorf("artifact %s: %w", k.Path, err)
		}
		k.Content = content
		return nil
	}
	if len(k.Hash) == 0 {
		return fmt.Errorf("artifact path or hash not provided")
	}
	content, err := load(k.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		if k.RemoteURL == "" {
			return fmt.Errorf("no content found")
		}
		if err := k.Download(ctx); err != nil {
			return err
		}
		if content, err = load(k.Hash); err != nil {
			return err
		}
		if content == nil {
			return fmt.Errorf("no content found after download")
		}
	}
	k.Content = content
	return nil
}

// Download method downloads the content of the artifact from the remote URL,
// checks the hash of the content and stores it locally. It returns an error if
// the remote URL is not provided or the content cannot be downloaded, or if the
// hash of the content does not match. If the content is already loaded, it will
// return.
func (k *Artifact) Download(ctx context.Context) error {
	// if the remote url is not provided, the artifact cannot be loaded so
	// it will return an error
	if k.RemoteURL == "" {
		return fmt.Errorf("key not loaded and remote url not provided")
	}
	// download the content of the artifact from the remote URL
	return downloadAndStore(ctx, k.Hash, k.RemoteURL)
}

// CircuitArtifacts is a struct that holds the artifacts of a circom circuit:
// the wasm witness calculator, the proving key and the verification key. Any
// of them can be nil, for example a verifier only needs the verification key.
type CircuitArtifacts struct {
	witnessCalculator *Artifact
	provingKey        *Artifact
	verifyingKey      *Artifact
}

// NewCircuitArtifacts creates a new CircuitArtifacts struct with the circuit
// artifacts provided. It returns the struct with the artifacts set.
func NewCircuitArtifacts(witnessCalculator, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		witnessCalculator: witnessCalculator,
		provingKey:        provingKey,
		verifyingKey:      verifyingKey,
	}
}

// LoadAll method loads the circuit artifacts into memory.
func (ca *CircuitArtifacts) LoadAll(ctx context.Context) error {
	if ca.witnessCalculator != nil {
		if err := ca.witnessCalculator.Load(ctx); err != nil {
			return fmt.Errorf("error loading witness calculator: %w", err)
		}
	}
	if ca.provingKey != nil {
		if err := ca.provingKey.Load(ctx); err != nil {
			return fmt.Errorf("error loading proving key: %w", err)
		}
	}
	if ca.verifyingKey != nil {
		if err := ca.verifyingKey.Load(ctx); err != nil {
			return fmt.Errorf("error loading verifying key: %w", err)
		}
	}
	return nil
}

// CanProve reports whether the witness calculator and the proving key are
// loaded.
func (ca *CircuitArtifacts) CanProve() bool {
	return ca != nil && len(ca.WitnessCalculator()) > 0 && len(ca.ProvingKey()) > 0
}

// CanVerify reports whether the verification key is loaded.
func (ca *CircuitArtifacts) CanVerify() bool {
	return ca != nil && len(ca.VerifyingKey()) > 0
}

// WitnessCalculator returns the content of the wasm witness calculator. If it
// is not loaded, it returns nil.
func (ca *CircuitArtifacts) WitnessCalculator() types.HexBytes {
	if ca.witnessCalculator == nil {
		return nil
	}
	return ca.witnessCalculator.Content
}

// ProvingKey returns the content of the proving key as types.HexBytes. If the
// proving key is not loaded, it returns nil.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	if ca.provingKey == nil {
		return nil
	}
	return ca.provingKey.Content
}

// VerifyingKey returns the content of the verifying key as types.HexBytes. If the
// verifying key is not loaded, it returns nil.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	if ca.verifyingKey == nil {
		return nil
	}
	return ca.verifyingKey.Content
}

func checkHash(content, hash []byte) error {
	if !CheckHashes || len(hash) == 0 {
		return nil
	}
	computed := sha256.Sum256(content)
	if !bytes.Equal(computed[:], hash) {
		return fmt.Errorf("hash mismatch: expected %x, got %x", hash, computed[:])
	}
	return nil
}

func load(hash []byte) ([]byte, error) {
	// check if BaseDir exists and create it if it does not
	if _, err := os.Stat(BaseDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(BaseDir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("error creating the base directory: %w", err)
			}
		} else {
			return nil, fmt.Errorf("error checking the base directory: %w", err)
		}
	}
	// append the name to the base directory and check if the file exists
	path := filepath.Join(BaseDir, hex.EncodeToString(hash))
	if _, err := os.Stat(path); err != nil {
		// if the file does not exists return nil content and nil error, but if
		// the error is not a not exists error, return the error
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error checking file %s: %w", path, err)
	}
	// if it exists, read the content of the file and return it
	content, err := os.ReadFile(path)
	if err != nil {
		if err == os.ErrNotExist {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	if err := checkHash(content, hash); err != nil {
		return nil, fmt.Errorf("file %s: %w", path, err)
	}
	return content, nil
}

// progressReader counts the bytes read through it.
type progressReader struct {
	reader io.Reader
	total  atomic.Int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.total.Add(int64(n))
	return n, err
}

// downloadAndStore downloads the artifact into <BaseDir>/<hex hash>. The
// content is first written to a .partial file, which lets an interrupted
// download resume with a range request, and only renamed once the hash
// matches.
func downloadAndStore(ctx context.Context, expectedHash []byte, fileURL string) error {
	if _, err := url.Parse(fileURL); err != nil {
		return fmt.Errorf("invalid artifact url: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(expectedHash))
	partialPath := path + ".partial"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create artifacts dir: %w", err)
	}
	var offset int64
	if info, err := os.Stat(partialPath); err == nil {
		offset = info.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("could not create artifact request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not download artifact: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnw("could not close artifact response", "url", fileURL, "error", err)
		}
	}()
	hasher := sha256.New()
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	switch res.StatusCode {
	case http.StatusPartialContent:
		if offset > 0 {
			// resume, the hash must cover the bytes already on disk
			flags = os.O_APPEND | os.O_WRONLY
			if err := hashFile(hasher, partialPath); err != nil {
				return err
			}
		}
	case http.StatusOK:
		offset = 0
	default:
		return fmt.Errorf("could not download artifact %s: http status %d", fileURL, res.StatusCode)
	}
	fd, err := os.OpenFile(partialPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("could not open artifact file: %w", err)
	}
	pr := &progressReader{reader: res.Body}
	if err := copyWithProgress(ctx, io.MultiWriter(fd, hasher), pr, res.ContentLength+offset, fileURL); err != nil {
		_ = fd.Close()
		return err
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("could not write artifact file: %w", err)
	}
	if CheckHashes {
		if computed := hasher.Sum(nil); !bytes.Equal(computed, expectedHash) {
			if err := os.Remove(partialPath); err != nil {
				log.Warnw("could not remove invalid artifact", "path", partialPath, "error", err)
			}
			return fmt.Errorf("hash mismatch: expected %x, got %x", expectedHash, computed)
		}
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("could not store artifact: %w", err)
	}
	log.Infow("artifact downloaded", "url", fileURL, "path", path)
	return nil
}

func hashFile(w io.Writer, path string) error {
	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open partial artifact: %w", err)
	}
	defer func() { _ = fd.Close() }()
	if _, err := io.Copy(w, fd); err != nil {
		return fmt.Errorf("could not read partial artifact: %w", err)
	}
	return nil
}

// copyWithProgress copies src into dst logging the progress every 10
// seconds. size is the expected total, zero or negative if unknown.
func copyWithProgress(ctx context.Context, dst io.Writer, src *progressReader, size int64, fileURL string) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(dst, src)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("could not copy artifact: %w", err)
			}
			return nil
		case <-ctx.Done():
			// the request context also aborts the body read, wait for it
			<-done
			return ctx.Err()
		case <-ticker.C:
			total := src.total.Load()
			progress := "unknown"
			if size > 0 {
				progress = fmt.Sprintf("%.2f%%", float64(total)/float64(size)*100)
			}
			log.Debugw("downloading artifact", "url", fileURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
				"progress", progress)
		}
	}
}
