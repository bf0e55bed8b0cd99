package console

import "strings"

// Markers are the substrings the parser looks for.
type Markers struct {
	// Ready marks the end of server initialization.
	Ready string `toml:"ready"`
	// RosterHeader starts a player list dump.
	RosterHeader string `toml:"roster_header"`
	// EmptyRoster inside a header means no player lines follow.
	EmptyRoster string `toml:"empty_roster"`
	// RosterEntry prefixes one player line.
	RosterEntry string `toml:"roster_entry"`
	// RosterQuery is the command that asks for the roster.
	RosterQuery string `toml:"roster_query"`
}

// DefaultMarkers returns the markers printed by Project Zomboid servers.
func DefaultMarkers() Markers {
	return Markers{
		Ready:        "Server started",
		RosterHeader: "Players connected (",
		EmptyRoster:  "(0)",
		RosterEntry:  "- ",
		RosterQuery:  CommandPlayers,
	}
}

// withDefaults fills empty fields from DefaultMarkers.
func (m Markers) withDefaults() Markers {
	d := DefaultMarkers()
	if m.Ready == "" {
		m.Ready = d.Ready
	}
	if m.RosterHeader == "" {
		m.RosterHeader = d.RosterHeader
	}
	if m.EmptyRoster == "" {
		m.EmptyRoster = d.EmptyRoster
	}
	if m.RosterEntry == "" {
		m.RosterEntry = d.RosterEntry
	}
	if m.RosterQuery == "" {
		m.RosterQuery = d.RosterQuery
	}
	return m
}

// Mode is the parser's sub-protocol state.
type Mode int

// Parser modes.
const (
	ModeIdle Mode = iota
	ModeAwaitingRoster
)

func (m Mode) String() string {
	if m == ModeAwaitingRoster {
		return "awaiting_roster"
	}
	return "idle"
}

// Outcome describes what a single line produced besides the raw relay.
type Outcome struct {
	// Ready is set when the line carried the ready marker.
	Ready bool
	// RosterDone is set when a roster response completed on this line.
	RosterDone bool
	// Roster holds the completed roster when RosterDone is set. It is
	// never nil in that case.
	Roster []string
	// RosterStarted is set when the line opened a new capture.
	RosterStarted bool
}

// Parser is the per-process console state machine.
type Parser struct {
	markers   Markers
	mode      Mode
	collected []string
	capture   uint64 // incremented for every capture opened
}

// NewParser creates a parser in Idle mode. Empty marker fields fall back to
// DefaultMarkers.
func NewParser(markers Markers) *Parser {
	return &Parser{markers: markers.withDefaults()}
}

// Mode returns the current mode.
func (p *Parser) Mode() Mode {
	return p.mode
}

// Capture returns the identifier of the most recent roster capture.
func (p *Parser) Capture() uint64 {
	return p.capture
}

// Feed classifies one console line.
func (p *Parser) Feed(line string) Outcome {
	var out Outcome

	if strings.Contains(line, p.markers.Ready) {
		out.Ready = true
	}

	isHeader := strings.Contains(line, p.markers.RosterHeader)

	if p.mode == ModeIdle {
		if isHeader {
			p.openCapture(line, &out)
		}
		return out
	}

	trimmed := strings.TrimSpace(line)
	switch {
	case !out.Ready && strings.HasPrefix(trimmed, p.markers.RosterEntry):
		name := strings.TrimSpace(trimmed[len(p.markers.RosterEntry):])
		p.collected = append(p.collected, name)
	case trimmed == "" || isHeader:
		if len(p.collected) > 0 {
			p.finish(&out)
		} else if isHeader {
			// Nothing collected yet: the repeated header is treated as a
			// fresh response rather than a terminator.
			p.openCapture(line, &out)
		}
	default:
		p.finish(&out)
	}

	return out
}

// Expect records a command written to the server. A roster query discards
// any capture still pending from an earlier query.
func (p *Parser) Expect(command string) {
	fields := strings.Fields(command)
	if len(fields) == 0 || !strings.EqualFold(fields[0], p.markers.RosterQuery) {
		return
	}
	p.mode = ModeIdle
	p.collected = nil
}

// Flush ends an open capture and returns whatever was collected. ok is false
// when no capture was open.
func (p *Parser) Flush() (roster []string, ok bool) {
	if p.mode != ModeAwaitingRoster {
		return nil, false
	}
	var out Outcome
	p.finish(&out)
	return out.Roster, true
}

func (p *Parser) openCapture(header string, out *Outcome) {
	p.capture++
	p.collected = nil
	if strings.Contains(header, p.markers.EmptyRoster) {
		p.mode = ModeIdle
		out.RosterDone = true
		out.Roster = []string{}
		return
	}
	p.mode = ModeAwaitingRoster
	out.RosterStarted = true
}

func (p *Parser) finish(out *Outcome) {
	out.RosterDone = true
	out.Roster = p.collected
	if out.Roster == nil {
		out.Roster = []string{}
	}
	p.collected = nil
	p.mode = ModeIdle
}
