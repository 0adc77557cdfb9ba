package registry

const (
	DefaultName          = "PoetryNFT"
	DefaultSymbol        = "POEM"
	DefaultMaxTextLength = 500
	MaxTextLengthCeiling = 10000
)

// Token is a minted poem. ID and Text never change once stored.
type Token struct {
	ID    uint64 `json:"id"`
	Text  string `json:"text"`
	Owner string `json:"owner"`
}

// Settings holds the mutable governance configuration.
type Settings struct {
	MaxTextLength int    `json:"maxTextLength"`
	Paused        bool   `json:"paused"`
	Admin         string `json:"admin"`
}

// Commit carries the counters and the journal entry written together with
// every mutation. Event.Sequence equals Sequence.
type Commit struct {
	NextID   uint64 `json:"nextId"`
	Sequence uint64 `json:"sequence"`
	Event    Event  `json:"event"`
}

// State is the full persisted registry state.
type State struct {
	Name     string           `json:"name"`
	Symbol   string           `json:"symbol"`
	NextID   uint64           `json:"nextId"`
	Sequence uint64           `json:"sequence"`
	Settings Settings         `json:"settings"`
	Tokens   map[uint64]Token `json:"tokens"`
}

// Info summarises the registry for display.
type Info struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	CurrentID     uint64 `json:"currentId"`
	MaxTextLength int    `json:"maxTextLength"`
	Paused        bool   `json:"paused"`
	Admin         string `json:"admin"`
	TokenCount    int    `json:"tokenCount"`
}

func newState(name, symbol, admin string) State {
	return State{
		Name:   name,
		Symbol: symbol,
		Settings: Settings{
			MaxTextLength: DefaultMaxTextLength,
			Admin:         admin,
		},
		Tokens: map[uint64]Token{},
	}
}

func cloneState(state State) State {
	cloned := state
	cloned.Tokens = make(map[uint64]Token, len(state.Tokens))
	for id, token := range state.Tokens {
		cloned.Tokens[id] = token
	}
	return cloned
}
