package world

import (
	"sort"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/zeebo/xxh3"

	"leviathan.ai/internal/sim/world/logic/mathx"
)

const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

func ChunkKeyAt(pos cube.Pos) ChunkKey {
	return ChunkKey{CX: mathx.FloorDiv(pos.X(), ChunkSize), CZ: mathx.FloorDiv(pos.Z(), ChunkSize)}
}

type Chunk struct {
	CX, CZ int
	Height int
	Blocks []Block // len = 16*16*Height

	dirty bool
	hash  uint64
}

func newChunk(cx, cz, height int) *Chunk {
	return &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: height,
		Blocks: make([]Block, ChunkSize*ChunkSize*height),
	}
}

func (c *Chunk) index(x, y, z int) int {
	// x fastest, then z, then y
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) Block {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b Block) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) Digest() uint64 {
	if c.dirty || c.hash == 0 {
		h := xxh3.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			tmp[0] = byte(v)
			tmp[1] = byte(v >> 8)
			_, _ = h.Write(tmp[:])
		}
		c.hash = h.Sum64()
		c.dirty = false
	}
	return c.hash
}

// ChunkStore holds generated chunks. Accessed only from the herd loop goroutine.
type ChunkStore struct {
	gen    Generator
	height int

	chunks   map[ChunkKey]*Chunk
	unloaded map[ChunkKey]bool
}

func NewChunkStore(gen Generator, height int) *ChunkStore {
	return &ChunkStore{
		gen:      gen,
		height:   height,
		chunks:   map[ChunkKey]*Chunk{},
		unloaded: map[ChunkKey]bool{},
	}
}

func (s *ChunkStore) Height() int { return s.height }

func (s *ChunkStore) inBounds(pos cube.Pos) bool {
	if pos.Y() < 0 || pos.Y() >= s.height {
		return false
	}
	if r := s.gen.BoundaryR; r > 0 {
		if pos.X() < -r || pos.X() > r || pos.Z() < -r || pos.Z() > r {
			return false
		}
	}
	return true
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		if s.unloaded[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// GetBlock reads pos, generating its chunk on first access. Unloaded chunks
// read as AIR.
func (s *ChunkStore) GetBlock(pos cube.Pos) Block {
	if !s.inBounds(pos) {
		return Air
	}
	k := ChunkKeyAt(pos)
	if s.unloaded[k] {
		return Air
	}
	ch := s.getOrGenChunk(k)
	return ch.Get(mathx.Mod(pos.X(), ChunkSize), pos.Y(), mathx.Mod(pos.Z(), ChunkSize))
}

func (s *ChunkStore) SetBlock(pos cube.Pos, b Block) error {
	if !s.inBounds(pos) {
		return ErrOutOfBounds
	}
	k := ChunkKeyAt(pos)
	if s.unloaded[k] {
		return ErrChunkNotLoaded
	}
	ch := s.getOrGenChunk(k)
	ch.Set(mathx.Mod(pos.X(), ChunkSize), pos.Y(), mathx.Mod(pos.Z(), ChunkSize), b)
	return nil
}

// Unload marks a chunk unavailable. Its contents are kept and come back on Load.
func (s *ChunkStore) Unload(k ChunkKey) { s.unloaded[k] = true }

func (s *ChunkStore) Load(k ChunkKey) { delete(s.unloaded, k) }

func (s *ChunkStore) getOrGenChunk(k ChunkKey) *Chunk {
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := newChunk(k.CX, k.CZ, s.height)
	s.gen.fill(ch)
	ch.dirty = true
	s.chunks[k] = ch
	return ch
}

// Digest hashes all loaded chunks in key order.
func (s *ChunkStore) Digest() uint64 {
	h := xxh3.New()
	var tmp [8]byte
	for _, k := range s.LoadedChunkKeys() {
		d := s.chunks[k].Digest()
		for i := 0; i < 8; i++ {
			tmp[i] = byte(d >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	return h.Sum64()
}
