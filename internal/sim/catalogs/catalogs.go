package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Blocks  BlockCatalog
	Islands IslandCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID    string `json:"id"`
	Solid bool   `json:"solid"`
	Fluid bool   `json:"fluid,omitempty"`
}

type IslandCatalog struct {
	ByID   map[string]IslandTemplate
	Digest string
}

// Size classes an island template can belong to.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

var SizeClasses = []string{SizeSmall, SizeMedium, SizeLarge}

type IslandTemplate struct {
	ID         string          `json:"id"`
	SizeClass  string          `json:"size_class"`
	Categories []string        `json:"categories,omitempty"` // empty = any
	AABB       [2][3]int       `json:"aabb"`
	Blocks     []TemplateBlock `json:"blocks"`
}

type TemplateBlock struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

// Allows reports whether the template may spawn in category.
func (t IslandTemplate) Allows(category string) bool {
	if len(t.Categories) == 0 {
		return true
	}
	for _, c := range t.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// Candidates returns template ids of sizeClass allowed in category, sorted.
func (c IslandCatalog) Candidates(sizeClass, category string) []string {
	var ids []string
	for id, t := range c.ByID {
		if t.SizeClass == sizeClass && t.Allows(category) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadIslands(filepath.Join(configDir, "islands"), &c.Islands); err != nil {
		return nil, err
	}
	if err := c.validateIslands(); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds catalogs in memory (tests, embedded defaults).
func New(blocks []BlockDef, islands []IslandTemplate) (*Catalogs, error) {
	var c Catalogs
	raw, err := json.Marshal(blocks)
	if err != nil {
		return nil, err
	}
	if err := parseBlocks(raw, &c.Blocks); err != nil {
		return nil, err
	}
	c.Islands.ByID = map[string]IslandTemplate{}
	var concat bytes.Buffer
	for _, t := range islands {
		if t.ID == "" {
			return nil, fmt.Errorf("island template: missing id")
		}
		c.Islands.ByID[t.ID] = t
		b, _ := json.Marshal(t)
		concat.Write(b)
		concat.WriteByte('\n')
	}
	c.Islands.Digest = sha256Hex(concat.Bytes())
	if err := c.validateIslands(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseBlocks(raw, out)
}

func parseBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadIslands(dir string, out *IslandCatalog) error {
	out.ByID = map[string]IslandTemplate{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// A missing directory means no islands; creatures spawn bare.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var t IslandTemplate
		if err := json.Unmarshal(b, &t); err != nil {
			return fmt.Errorf("island %s: %w", filepath.Base(p), err)
		}
		if t.ID == "" {
			return fmt.Errorf("island %s: missing id", filepath.Base(p))
		}
		out.ByID[t.ID] = t
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func (c *Catalogs) validateIslands() error {
	for id, t := range c.Islands.ByID {
		switch t.SizeClass {
		case SizeSmall, SizeMedium, SizeLarge:
		default:
			return fmt.Errorf("island %s: unknown size_class %q", id, t.SizeClass)
		}
		for _, b := range t.Blocks {
			if _, ok := c.Blocks.Index[b.Block]; !ok {
				return fmt.Errorf("island %s: unknown block %q", id, b.Block)
			}
			for i := 0; i < 3; i++ {
				if b.Pos[i] < t.AABB[0][i] || b.Pos[i] > t.AABB[1][i] {
					return fmt.Errorf("island %s: block %v outside aabb", id, b.Pos)
				}
			}
		}
	}
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
