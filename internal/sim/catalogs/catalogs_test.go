package catalogs

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad_PaletteAndIslands(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocks.json"), `[
		{"id":"WATER","fluid":true},
		{"id":"SAND","solid":true},
		{"id":"AIR"}
	]`)
	writeFile(t, filepath.Join(dir, "islands", "b.json"), `{
		"id":"bar","size_class":"small","aabb":[[0,0,0],[1,0,0]],
		"blocks":[{"pos":[0,0,0],"block":"SAND"},{"pos":[1,0,0],"block":"SAND"}]
	}`)
	writeFile(t, filepath.Join(dir, "islands", "a.json"), `{
		"id":"reef","size_class":"small","categories":["DEEP_OCEAN"],"aabb":[[0,0,0],[0,0,0]],
		"blocks":[{"pos":[0,0,0],"block":"SAND"}]
	}`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Blocks.Palette[0] != "AIR" {
		t.Fatalf("palette[0]=%q want AIR", c.Blocks.Palette[0])
	}
	if got := c.Blocks.Index["AIR"]; got != 0 {
		t.Fatalf("AIR index=%d", got)
	}
	if len(c.Islands.ByID) != 2 {
		t.Fatalf("islands=%d want 2", len(c.Islands.ByID))
	}
	if c.Islands.Digest == "" {
		t.Fatalf("expected island digest")
	}

	if got := c.Islands.Candidates(SizeSmall, "OCEAN"); !reflect.DeepEqual(got, []string{"bar"}) {
		t.Fatalf("OCEAN candidates=%v", got)
	}
	if got := c.Islands.Candidates(SizeSmall, "deep_ocean"); !reflect.DeepEqual(got, []string{"bar", "reef"}) {
		t.Fatalf("DEEP_OCEAN candidates=%v", got)
	}
	if got := c.Islands.Candidates(SizeLarge, "OCEAN"); len(got) != 0 {
		t.Fatalf("large candidates=%v want none", got)
	}
}

func TestLoad_MissingIslandsDirIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocks.json"), `[{"id":"AIR"}]`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Islands.ByID) != 0 {
		t.Fatalf("expected no islands")
	}
}

func TestNew_RejectsUnknownBlockAndClass(t *testing.T) {
	blocks := []BlockDef{{ID: "AIR"}, {ID: "SAND", Solid: true}}
	_, err := New(blocks, []IslandTemplate{{
		ID: "x", SizeClass: SizeSmall, AABB: [2][3]int{{0, 0, 0}, {0, 0, 0}},
		Blocks: []TemplateBlock{{Pos: [3]int{0, 0, 0}, Block: "LAVA"}},
	}})
	if err == nil {
		t.Fatalf("expected unknown block error")
	}
	_, err = New(blocks, []IslandTemplate{{ID: "y", SizeClass: "huge"}})
	if err == nil {
		t.Fatalf("expected unknown size class error")
	}
	_, err = New(blocks, []IslandTemplate{{
		ID: "z", SizeClass: SizeSmall, AABB: [2][3]int{{0, 0, 0}, {0, 0, 0}},
		Blocks: []TemplateBlock{{Pos: [3]int{2, 0, 0}, Block: "SAND"}},
	}})
	if err == nil {
		t.Fatalf("expected outside-aabb error")
	}
}

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load repo configs: %v", err)
	}
	for _, class := range SizeClasses {
		if len(c.Islands.Candidates(class, "DEEP_OCEAN")) == 0 {
			t.Fatalf("no %s island for DEEP_OCEAN", class)
		}
	}
}
