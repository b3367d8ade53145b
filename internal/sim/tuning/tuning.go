package tuning

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid tuning")

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	TickRateHz int   `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Seed       int64 `yaml:"seed" json:"seed"`

	World       World       `yaml:"world" json:"world"`
	Herd        Herd        `yaml:"herd" json:"herd"`
	Creature    Creature    `yaml:"creature" json:"creature"`
	Navigation  Navigation  `yaml:"navigation" json:"navigation"`
	Pathfinding Pathfinding `yaml:"pathfinding" json:"pathfinding"`
	Island      Island      `yaml:"island" json:"island"`
}

type World struct {
	ID            string `yaml:"id" json:"id"`
	Height        int    `yaml:"height" json:"height"`
	BoundaryR     int    `yaml:"boundary_r" json:"boundary_r"`
	SeaLevel      int    `yaml:"sea_level" json:"sea_level"`
	MinDepth      int    `yaml:"min_depth" json:"min_depth"`
	MaxDepth      int    `yaml:"max_depth" json:"max_depth"`
	BasinSize     int    `yaml:"basin_size" json:"basin_size"`
	ShoalPermille int    `yaml:"shoal_permille" json:"shoal_permille"`
	ShoalSize     int    `yaml:"shoal_size" json:"shoal_size"`
}

type Herd struct {
	PopulationCap     int     `yaml:"population_cap" json:"population_cap"`
	MinSpawnDistance  float32 `yaml:"min_spawn_distance" json:"min_spawn_distance"`
	CaptureRetryTicks int     `yaml:"capture_retry_ticks" json:"capture_retry_ticks"`
	SwimOffsetY       float32 `yaml:"swim_offset_y" json:"swim_offset_y"`
	InitialCreatures  int     `yaml:"initial_creatures" json:"initial_creatures"`
	SpawnRadius       float32 `yaml:"spawn_radius" json:"spawn_radius"`
	Debug             bool    `yaml:"debug" json:"debug"`
}

type Creature struct {
	MinIdleTicks        int  `yaml:"min_idle_ticks" json:"min_idle_ticks"`
	MaxIdleTicks        int  `yaml:"max_idle_ticks" json:"max_idle_ticks"`
	IdleMinSpan         int  `yaml:"idle_min_span" json:"idle_min_span"`
	TransitionTicks     int  `yaml:"transition_ticks" json:"transition_ticks"`
	DamageResponseTicks int  `yaml:"damage_response_ticks" json:"damage_response_ticks"`
	MinMovingTicks      int  `yaml:"min_moving_ticks" json:"min_moving_ticks"`
	MaxMovingTicks      int  `yaml:"max_moving_ticks" json:"max_moving_ticks"`
	Debug               bool `yaml:"debug" json:"debug"`
}

type Navigation struct {
	DepthCap            int     `yaml:"depth_cap" json:"depth_cap"`
	MinWaterDepth       int     `yaml:"min_water_depth" json:"min_water_depth"`
	DestinationSamples  int     `yaml:"destination_samples" json:"destination_samples"`
	DestinationDistance float32 `yaml:"destination_distance" json:"destination_distance"`
	ArrivalDistance     float32 `yaml:"arrival_distance" json:"arrival_distance"`
	EscapeBias          float32 `yaml:"escape_bias" json:"escape_bias"`

	Home [3]float32 `yaml:"home" json:"home"`

	MoveSpeed           float32 `yaml:"move_speed" json:"move_speed"`
	EscapeSpeed         float32 `yaml:"escape_speed" json:"escape_speed"`
	SteerRetain         float32 `yaml:"steer_retain" json:"steer_retain"`
	ShallowSpeedFactor  float32 `yaml:"shallow_speed_factor" json:"shallow_speed_factor"`
	HeadingDotThreshold float32 `yaml:"heading_dot_threshold" json:"heading_dot_threshold"`
	HeadingPenalty      float32 `yaml:"heading_penalty" json:"heading_penalty"`
	MaxTurnDegrees      float32 `yaml:"max_turn_degrees" json:"max_turn_degrees"`
	WaypointRadius      float32 `yaml:"waypoint_radius" json:"waypoint_radius"`

	RecalcIntervalTicks int     `yaml:"recalc_interval_ticks" json:"recalc_interval_ticks"`
	StuckCheckTicks     int     `yaml:"stuck_check_ticks" json:"stuck_check_ticks"`
	StuckEpsilon        float32 `yaml:"stuck_epsilon" json:"stuck_epsilon"`
	StuckThresholdTicks int     `yaml:"stuck_threshold_ticks" json:"stuck_threshold_ticks"`
	Debug               bool    `yaml:"debug" json:"debug"`
}

type Pathfinding struct {
	Enabled  bool `yaml:"enabled" json:"enabled"`
	Margin   int  `yaml:"margin" json:"margin"`
	Stride   int  `yaml:"stride" json:"stride"`
	MaxNodes int  `yaml:"max_nodes" json:"max_nodes"`
}

type Island struct {
	MoveEpsilon float32                   `yaml:"move_epsilon" json:"move_epsilon"`
	RideHeight  float32                   `yaml:"ride_height" json:"ride_height"`
	SizeWeights map[string]map[string]int `yaml:"size_weights" json:"size_weights"`
	Debug       bool                      `yaml:"debug" json:"debug"`
}

// Defaults mirrors configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		TickRateHz: 20,
		Seed:       1337,
		World: World{
			ID:            "ocean_1",
			Height:        128,
			BoundaryR:     4000,
			SeaLevel:      62,
			MinDepth:      4,
			MaxDepth:      40,
			BasinSize:     48,
			ShoalPermille: 2,
			ShoalSize:     96,
		},
		Herd: Herd{
			PopulationCap:     4,
			MinSpawnDistance:  256,
			CaptureRetryTicks: 200,
			SwimOffsetY:       -1,
			InitialCreatures:  1,
			SpawnRadius:       512,
		},
		Creature: Creature{
			MinIdleTicks:        200,
			MaxIdleTicks:        600,
			IdleMinSpan:         20,
			TransitionTicks:     40,
			DamageResponseTicks: 20,
			MinMovingTicks:      100,
			MaxMovingTicks:      2400,
		},
		Navigation: Navigation{
			DepthCap:            32,
			MinWaterDepth:       6,
			DestinationSamples:  8,
			DestinationDistance: 64,
			ArrivalDistance:     8,
			EscapeBias:          0.5,
			Home:                [3]float32{0, 62, 0},
			MoveSpeed:           0.08,
			EscapeSpeed:         0.2,
			SteerRetain:         0.8,
			ShallowSpeedFactor:  0.5,
			HeadingDotThreshold: 0.5,
			HeadingPenalty:      0.5,
			MaxTurnDegrees:      2,
			WaypointRadius:      2,
			RecalcIntervalTicks: 200,
			StuckCheckTicks:     20,
			StuckEpsilon:        0.25,
			StuckThresholdTicks: 100,
		},
		Pathfinding: Pathfinding{Enabled: true, Margin: 16, Stride: 8, MaxNodes: 32768},
		Island: Island{
			MoveEpsilon: 0.001,
			RideHeight:  2,
			SizeWeights: map[string]map[string]int{
				"default":    {"small": 5, "medium": 3, "large": 1},
				"SHOAL":      {"small": 1},
				"OCEAN":      {"small": 4, "medium": 3, "large": 1},
				"DEEP_OCEAN": {"small": 1, "medium": 3, "large": 4},
			},
		},
	}
}

// Load reads a YAML tuning file over Defaults and validates it against the
// embedded schema.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	if err := Validate(raw); err != nil {
		return Tuning{}, err
	}
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString("tuning.schema.json", schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile tuning schema: %w", err)
	}
	return s, nil
})

// Validate checks a YAML document against the tuning schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// Round-trip through JSON so the validator sees JSON-native types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	s, err := schema()
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
