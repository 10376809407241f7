package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Robots asks for per-robot state on every TICK.
	Robots bool `json:"robots"`
	// MapEveryTicks forces a full MAP at least this often even when nothing
	// moved. 0 sends MAP only on join and on change.
	MapEveryTicks int `json:"map_every_ticks,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	RunID           string      `json:"run_id"`
	Tick            uint64      `json:"tick"`
	ArenaParams     ArenaParams `json:"arena_params"`
}

type ArenaParams struct {
	TickRateHz int        `json:"tick_rate_hz"`
	Seed       int64      `json:"seed"`
	Size       [2]float64 `json:"size"`
	Grid       [2]int     `json:"grid"`
	Resolution float64    `json:"resolution"`
	NestCenter [2]float64 `json:"nest_center"`
	NestSpan   [2]float64 `json:"nest_span"`
	CacheDim   int        `json:"cache_dim"`
	Blocks     int        `json:"blocks"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Counts       Counts        `json:"counts"`
	Serving      int           `json:"serving"`
	Interactions []Interaction `json:"interactions,omitempty"`
	Robots       []RobotState  `json:"robots,omitempty"`
}

type Counts struct {
	Free    int `json:"free"`
	Carried int `json:"carried"`
	Cached  int `json:"cached"`
	Caches  int `json:"caches"`
}

type Interaction struct {
	RobotID int    `json:"robot_id"`
	Status  string `json:"status"`
}

type RobotState struct {
	ID      int        `json:"id"`
	Pos     [2]float64 `json:"pos"`
	Carried int        `json:"carried"`
	Task    string     `json:"task"`
	Goal    string     `json:"goal"`
}

// Server -> Client. Full placement of free blocks and caches, sent on join and
// whenever the map changes.
type MapMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Blocks          []BlockState `json:"blocks"`
	Caches          []CacheState `json:"caches"`
}

type BlockState struct {
	ID    int    `json:"id"`
	Cell  [2]int `json:"cell"`
	Shape string `json:"shape"`
}

type CacheState struct {
	ID      int        `json:"id"`
	Center  [2]float64 `json:"center"`
	Cell    [2]int     `json:"cell"`
	Blocks  int        `json:"blocks"`
	Static  bool       `json:"static"`
	Created uint64     `json:"created_tick"`
}
