package hasher

import (
	"crypto/md5" //nolint:gosec // legacy digest published for downstream consumers
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/zeebo/blake3"
)

type Algorithm struct {
	Name      string
	Extension string
	New       func() hash.Hash
}

var (
	SHA256 = Algorithm{Name: "sha256", Extension: "sha256", New: sha256.New}
	SHA512 = Algorithm{Name: "sha512", Extension: "sha512", New: sha512.New}
	MD5    = Algorithm{Name: "md5", Extension: "md5", New: md5.New}
	BLAKE3 = Algorithm{Name: "blake3", Extension: "blake3", New: func() hash.Hash { return blake3.New() }}
)

var DefaultAlgorithms = []Algorithm{SHA256, SHA512, MD5}

var knownAlgorithms = []Algorithm{SHA256, SHA512, MD5, BLAKE3}

func Lookup(name string) (Algorithm, error) {
	for _, a := range knownAlgorithms {
		if a.Name == strings.ToLower(strings.TrimSpace(name)) {
			return a, nil
		}
	}
	return Algorithm{}, fmt.Errorf("unknown hash algorithm: %s", name)
}

// IsArtifact reports whether fileName is a hash artifact of any known
// algorithm, configured or not.
func IsArtifact(fileName string) bool {
	for _, a := range knownAlgorithms {
		if strings.HasSuffix(strings.ToLower(fileName), "."+a.Extension) {
			return true
		}
	}
	return false
}

// ArtifactPaths returns the sibling paths of every known algorithm for path.
func ArtifactPaths(path string) []string {
	ret := make([]string, len(knownAlgorithms))
	for i, a := range knownAlgorithms {
		ret[i] = path + "." + a.Extension
	}
	return ret
}

type Hasher struct {
	store      *store.Store
	algorithms []Algorithm
}

func New(s *store.Store, algorithms ...Algorithm) *Hasher {
	if len(algorithms) == 0 {
		algorithms = DefaultAlgorithms
	}
	return &Hasher{
		store:      s,
		algorithms: algorithms,
	}
}

func (h *Hasher) Algorithms() []Algorithm {
	return h.algorithms
}

// Digest computes all configured digests of path in a single read pass.
func (h *Hasher) Digest(path string) (map[string]string, error) {
	f, err := h.store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	hashes := make([]hash.Hash, len(h.algorithms))
	writers := make([]io.Writer, len(h.algorithms))
	for i, a := range h.algorithms {
		hashes[i] = a.New()
		writers[i] = hashes[i]
	}
	if _, err := io.Copy(io.MultiWriter(writers...), f); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	ret := make(map[string]string, len(h.algorithms))
	for i, a := range h.algorithms {
		ret[a.Name] = hex.EncodeToString(hashes[i].Sum(nil))
	}
	return ret, nil
}

// HashFile computes the configured digests of path and writes each one as
// <path>.<extension>. All write failures are returned together.
func (h *Hasher) HashFile(path string) (map[string]string, error) {
	digests, err := h.Digest(path)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, a := range h.algorithms {
		if wErr := h.store.WriteFileAtomic(path+"."+a.Extension, []byte(digests[a.Name])); wErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name, wErr))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to write hash files for %s: %w", path, err)
	}
	return digests, nil
}
