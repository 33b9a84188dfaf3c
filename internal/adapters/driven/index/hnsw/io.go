package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

var indexMagic = [4]byte{'T', 'M', 'H', 'N'}

const indexVersion uint32 = 1

// Upper bounds on header fields, checked before anything is allocated.
const (
	maxIndexDim    = 1 << 16
	maxIndexM      = 1 << 10
	maxIndexFloats = 1 << 31 // count × dim
	preallocNodes  = 1 << 16
)

// Distance codes stored in the header.
const (
	codeCosine uint8 = iota
	codeL2
)

// Save writes the graph in a compact little-endian binary format.
//
//	[4B magic "TMHN"] [4B version]
//	[4B dim] [4B M] [4B efConstruction] [4B efSearch] [1B distance] [8B seed]
//	[4B count] [4B maxLevel] [4B entryID]
//	For each node, in position order:
//	  [4B level] [dim × 4B float32 vector]
//	  For each layer 0..level:
//	    [4B numFriends] [numFriends × 4B friend ids]
func (h *Index) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	write := func(v any) error { return binary.Write(bw, le, v) }

	if _, err := bw.Write(indexMagic[:]); err != nil {
		return fmt.Errorf("saving index magic: %w", err)
	}

	code := codeCosine
	if h.cfg.Distance == domain.DistanceL2 {
		code = codeL2
	}
	header := []any{
		indexVersion,
		uint32(h.cfg.Dim),
		uint32(h.cfg.M),
		uint32(h.cfg.EfConstruction),
		uint32(h.cfg.EfSearch),
		code,
		h.cfg.Seed,
		uint32(len(h.nodes)),
		uint32(h.maxLevel),
		h.entryID,
	}
	for _, v := range header {
		if err := write(v); err != nil {
			return fmt.Errorf("saving index header: %w", err)
		}
	}

	for p := range h.nodes {
		nd := &h.nodes[p]
		if err := write(uint32(nd.level)); err != nil {
			return err
		}
		if err := write(nd.vector); err != nil {
			return err
		}
		for lev := 0; lev <= nd.level; lev++ {
			friends := nd.friends[lev]
			if err := write(uint32(len(friends))); err != nil {
				return err
			}
			if len(friends) == 0 {
				continue
			}
			if err := write(friends); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Load reads a graph written by Save.
func Load(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian
	read := func(v any) error { return binary.Read(br, le, v) }

	corrupt := func(what string, err error) error {
		return fmt.Errorf("%w: index %s: %v", domain.ErrArtifactCorrupt, what, err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, corrupt("magic", err)
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("%w: invalid index magic %q", domain.ErrArtifactCorrupt, magic[:])
	}

	var version uint32
	if err := read(&version); err != nil {
		return nil, corrupt("version", err)
	}
	if version != indexVersion {
		return nil, fmt.Errorf("%w: unsupported index version %d (want %d)",
			domain.ErrArtifactCorrupt, version, indexVersion)
	}

	var (
		dim, m, efC, efS uint32
		code             uint8
		seed             uint64
		count, maxLev    uint32
		entryID          int32
	)
	for _, v := range []any{&dim, &m, &efC, &efS, &code, &seed, &count, &maxLev, &entryID} {
		if err := read(v); err != nil {
			return nil, corrupt("header", err)
		}
	}
	if dim > maxIndexDim {
		return nil, fmt.Errorf("%w: index dimension %d exceeds %d", domain.ErrArtifactCorrupt, dim, maxIndexDim)
	}
	if m > maxIndexM {
		return nil, fmt.Errorf("%w: index M %d exceeds %d", domain.ErrArtifactCorrupt, m, maxIndexM)
	}
	if uint64(count)*uint64(dim) > maxIndexFloats {
		return nil, fmt.Errorf("%w: index of %d × %d floats exceeds %d",
			domain.ErrArtifactCorrupt, count, dim, maxIndexFloats)
	}
	if maxLev > maxLevel {
		return nil, fmt.Errorf("%w: index max level %d", domain.ErrArtifactCorrupt, maxLev)
	}
	if count > 0 && (entryID < 0 || uint32(entryID) >= count) {
		return nil, fmt.Errorf("%w: entry point %d out of range", domain.ErrArtifactCorrupt, entryID)
	}

	distance := domain.DistanceCosine
	if code == codeL2 {
		distance = domain.DistanceL2
	}
	cfg := Config{
		Dim:            int(dim),
		M:              int(m),
		EfConstruction: int(efC),
		EfSearch:       int(efS),
		Distance:       distance,
		Seed:           seed,
	}
	cfg.setDefaults()
	dist, err := distanceFor(cfg.Distance)
	if err != nil {
		return nil, err
	}

	// Grow as nodes are read so a forged count fails on EOF, not on allocation.
	nodes := make([]node, 0, min(count, preallocNodes))
	for p := range int(count) {
		var level uint32
		if err := read(&level); err != nil {
			return nil, corrupt("node level", err)
		}
		if level > maxLevel {
			return nil, fmt.Errorf("%w: node %d level %d", domain.ErrArtifactCorrupt, p, level)
		}

		vec := make([]float32, dim)
		if err := read(vec); err != nil {
			return nil, corrupt("node vector", err)
		}

		friends := make([][]uint32, level+1)
		for lev := range friends {
			var nf uint32
			if err := read(&nf); err != nil {
				return nil, corrupt("friend count", err)
			}
			if nf == 0 {
				continue
			}
			if nf > count || int(nf) > cfg.maxConns(lev) {
				return nil, fmt.Errorf("%w: node %d has %d friends", domain.ErrArtifactCorrupt, p, nf)
			}
			friends[lev] = make([]uint32, nf)
			if err := read(friends[lev]); err != nil {
				return nil, corrupt("friends", err)
			}
			for _, f := range friends[lev] {
				if f >= count {
					return nil, fmt.Errorf("%w: node %d links to %d", domain.ErrArtifactCorrupt, p, f)
				}
			}
		}

		nodes = append(nodes, node{vector: vec, level: int(level), friends: friends})
	}

	return &Index{
		cfg:      cfg,
		dist:     dist,
		nodes:    nodes,
		entryID:  entryID,
		maxLevel: int(maxLev),
	}, nil
}
