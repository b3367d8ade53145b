package observerproto

// Version is the observer protocol version.
const Version = "0.2"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: only stream this creature.
	FocusID string `json:"focus_id,omitempty"`
	// Include absolute island cells in every frame.
	Footprints bool `json:"footprints,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string          `json:"protocol_version"`
	WorldID         string          `json:"world_id"`
	Tick            uint64          `json:"tick"`
	WorldParams     WorldParams     `json:"world_params"`
	BlockPalette    []string        `json:"block_palette"`
	Creatures       []CreatureState `json:"creatures"`
}

type WorldParams struct {
	TickRateHz    int   `json:"tick_rate_hz"`
	Height        int   `json:"height"`
	Seed          int64 `json:"seed"`
	BoundaryR     int   `json:"boundary_r"`
	SeaLevel      int   `json:"sea_level"`
	PopulationCap int   `json:"population_cap"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Creatures   []CreatureState  `json:"creatures"`
	Spawned     []SpawnInfo      `json:"spawned,omitempty"`
	Removed     []RemovalInfo    `json:"removed,omitempty"`
	Transitions []TransitionInfo `json:"transitions,omitempty"`
}

type CreatureState struct {
	ID         string      `json:"id"`
	State      string      `json:"state"`
	StateTimer int         `json:"state_timer"`
	Pos        [3]float32  `json:"pos"`
	Vel        [3]float32  `json:"vel"`
	Yaw        float32     `json:"yaw"`
	Target     *[3]float32 `json:"target,omitempty"`
	Escaping   bool        `json:"escaping,omitempty"`

	Island *IslandState `json:"island,omitempty"`
}

type IslandState struct {
	Template   string     `json:"template"`
	SizeClass  string     `json:"size_class"`
	Category   string     `json:"category"`
	Blocks     int        `json:"blocks"`
	Missing    int        `json:"missing,omitempty"`
	Passengers int        `json:"passengers"`
	Min        [3]float32 `json:"min"`
	Max        [3]float32 `json:"max"`
	Footprint  [][3]int   `json:"footprint,omitempty"`
}

type SpawnInfo struct {
	ID     string     `json:"id,omitempty"`
	Pos    [3]float32 `json:"pos"`
	Island string     `json:"island,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type RemovalInfo struct {
	ID    string `json:"id"`
	Cause string `json:"cause"`
}

type TransitionInfo struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Event string `json:"event"`
}
