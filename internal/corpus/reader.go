// Package corpus reads the line-aligned source/target corpus files.
package corpus

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// maxLineSize bounds a single corpus line.
const maxLineSize = 1 << 20

// ReadLines reads a corpus file, one segment per line.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()

	lines, err := scanLines(f)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return lines, nil
}

func scanLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// ReadPair reads the source and target files and pairs them by position.
// Files of unequal length are rejected with domain.ErrCorpusMisaligned.
func ReadPair(srcPath, tgtPath string) ([]domain.CorpusLine, error) {
	src, err := ReadLines(srcPath)
	if err != nil {
		return nil, err
	}
	tgt, err := ReadLines(tgtPath)
	if err != nil {
		return nil, err
	}
	if len(src) != len(tgt) {
		return nil, fmt.Errorf("%w: %d source lines, %d target lines", domain.ErrCorpusMisaligned, len(src), len(tgt))
	}

	lines := make([]domain.CorpusLine, len(src))
	for i := range src {
		lines[i] = domain.CorpusLine{
			Position: i,
			Source:   strings.TrimSpace(src[i]),
			Target:   strings.TrimSpace(tgt[i]),
		}
	}
	return lines, nil
}

// Fingerprint returns a stable hex digest of a tokenized corpus and the
// settings that shaped it. Artifacts derived from the corpus record it as
// their parent.
func Fingerprint(tokens [][]string, settings string) string {
	h := sha256.New()
	io.WriteString(h, settings) //nolint:errcheck
	for _, doc := range tokens {
		h.Write([]byte{0x1e})
		for _, tok := range doc {
			io.WriteString(h, tok) //nolint:errcheck
			h.Write([]byte{0x1f})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
