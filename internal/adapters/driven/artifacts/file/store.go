package file

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

var envelopeMagic = [4]byte{'T', 'M', 'A', 'F'}

// FormatVersion is the envelope version written by this package.
const FormatVersion uint32 = 1

// maxHeaderLen bounds the header read from untrusted files.
const maxHeaderLen = 1 << 16

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

// Store maps each artifact kind to its own file.
type Store struct {
	paths map[domain.ArtifactKind]string
	now   func() time.Time
}

// NewStore creates a store over the configured artifact paths.
func NewStore(cfg domain.SerializationConfig) *Store {
	return &Store{
		paths: map[domain.ArtifactKind]string{
			domain.ArtifactModel:   cfg.ModelPath,
			domain.ArtifactVectors: cfg.VectorPath,
			domain.ArtifactIndex:   cfg.IndexPath,
		},
		now: time.Now,
	}
}

// Path returns the file backing kind.
func (s *Store) Path(kind domain.ArtifactKind) string {
	return s.paths[kind]
}

func (s *Store) path(kind domain.ArtifactKind) (string, error) {
	p := s.paths[kind]
	if p == "" {
		return "", fmt.Errorf("%w: no path configured for %s artifact", domain.ErrInvalidInput, kind)
	}
	return p, nil
}

// Exists reports whether the artifact file is present.
func (s *Store) Exists(kind domain.ArtifactKind) bool {
	p, err := s.path(kind)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Header reads the envelope header without verifying the payload.
func (s *Store) Header(kind domain.ArtifactKind) (domain.ArtifactHeader, error) {
	f, err := s.open(kind)
	if err != nil {
		return domain.ArtifactHeader{}, err
	}
	defer f.Close()

	return readHeader(bufio.NewReader(f), kind)
}

// Save streams the payload produced by write into the artifact file.
// The payload is spooled to a temporary file to compute its checksum,
// then the envelope and payload are written to a second temporary file
// that is renamed over the destination.
func (s *Store) Save(kind domain.ArtifactKind, buildID, parent string, write func(io.Writer) error) (domain.ArtifactHeader, error) {
	dst, err := s.path(kind)
	if err != nil {
		return domain.ArtifactHeader{}, err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("creating artifact directory: %w", err)
	}

	spool, err := os.CreateTemp(dir, ".payload-*")
	if err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("creating payload spool: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	hasher := sha256.New()
	bw := bufio.NewWriter(io.MultiWriter(spool, hasher))
	if err := write(bw); err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("writing %s payload: %w", kind, err)
	}
	if err := bw.Flush(); err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("writing %s payload: %w", kind, err)
	}

	hdr := domain.ArtifactHeader{
		Kind:      kind,
		Version:   FormatVersion,
		BuildID:   buildID,
		Parent:    parent,
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt: s.now().UTC(),
	}
	raw, err := msgpack.Marshal(&hdr)
	if err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("encoding %s header: %w", kind, err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return domain.ArtifactHeader{}, err
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("creating artifact temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	out := bufio.NewWriter(tmp)
	if _, err := out.Write(envelopeMagic[:]); err != nil {
		return domain.ArtifactHeader{}, err
	}
	if err := binary.Write(out, binary.LittleEndian, uint32(len(raw))); err != nil {
		return domain.ArtifactHeader{}, err
	}
	if _, err := out.Write(raw); err != nil {
		return domain.ArtifactHeader{}, err
	}
	if _, err := io.Copy(out, spool); err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("copying %s payload: %w", kind, err)
	}
	if err := out.Flush(); err != nil {
		return domain.ArtifactHeader{}, err
	}
	if err := tmp.Sync(); err != nil {
		return domain.ArtifactHeader{}, err
	}
	if err := tmp.Close(); err != nil {
		return domain.ArtifactHeader{}, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("installing %s artifact: %w", kind, err)
	}
	committed = true

	return hdr, nil
}

// Load verifies the envelope, streams the payload to read, and checks the
// payload checksum once read returns. Bytes read left unconsumed are still
// hashed.
func (s *Store) Load(kind domain.ArtifactKind, read func(io.Reader) error) (domain.ArtifactHeader, error) {
	f, err := s.open(kind)
	if err != nil {
		return domain.ArtifactHeader{}, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	hdr, err := readHeader(br, kind)
	if err != nil {
		return domain.ArtifactHeader{}, err
	}

	hasher := sha256.New()
	payload := io.TeeReader(br, hasher)
	if err := read(payload); err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("reading %s payload: %w", kind, err)
	}
	if _, err := io.Copy(io.Discard, payload); err != nil {
		return domain.ArtifactHeader{}, fmt.Errorf("reading %s payload: %w", kind, err)
	}

	if sum := hex.EncodeToString(hasher.Sum(nil)); sum != hdr.Checksum {
		return domain.ArtifactHeader{}, fmt.Errorf("%w: %s checksum %s, header records %s",
			domain.ErrArtifactCorrupt, kind, sum, hdr.Checksum)
	}
	return hdr, nil
}

func (s *Store) open(kind domain.ArtifactKind) (*os.File, error) {
	p, err := s.path(kind)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s artifact at %s", domain.ErrArtifactMissing, kind, p)
		}
		return nil, fmt.Errorf("opening %s artifact: %w", kind, err)
	}
	return f, nil
}

func readHeader(r io.Reader, kind domain.ArtifactKind) (domain.ArtifactHeader, error) {
	var hdr domain.ArtifactHeader

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return hdr, fmt.Errorf("%w: %s envelope: %v", domain.ErrArtifactCorrupt, kind, err)
	}
	if magic != envelopeMagic {
		return hdr, fmt.Errorf("%w: %s envelope magic %q", domain.ErrArtifactCorrupt, kind, magic[:])
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return hdr, fmt.Errorf("%w: %s header length: %v", domain.ErrArtifactCorrupt, kind, err)
	}
	if n == 0 || n > maxHeaderLen {
		return hdr, fmt.Errorf("%w: %s header length %d", domain.ErrArtifactCorrupt, kind, n)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return hdr, fmt.Errorf("%w: %s header: %v", domain.ErrArtifactCorrupt, kind, err)
	}
	if err := msgpack.Unmarshal(raw, &hdr); err != nil {
		return hdr, fmt.Errorf("%w: %s header: %v", domain.ErrArtifactCorrupt, kind, err)
	}

	if hdr.Kind != kind {
		return hdr, fmt.Errorf("%w: file holds a %s artifact, want %s", domain.ErrArtifactCorrupt, hdr.Kind, kind)
	}
	if hdr.Version != FormatVersion {
		return hdr, fmt.Errorf("%w: %s envelope version %d (want %d)",
			domain.ErrArtifactStale, kind, hdr.Version, FormatVersion)
	}
	return hdr, nil
}
