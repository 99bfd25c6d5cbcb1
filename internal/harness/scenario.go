package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/puzzlesync/internal/puzzle"
)

// Scenario is one multi-participant run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Participants []Participant `yaml:"participants"`

	// Definition is an inline puzzle definition in the authoring format.
	Definition yaml.Node `yaml:"definition,omitempty"`
	// DefinitionFile is a definition file relative to the scenario.
	DefinitionFile string `yaml:"definitionFile,omitempty"`

	// SharedLock makes every owner use one solve lock, like owners sharing
	// a Redis server.
	SharedLock bool `yaml:"sharedLock,omitempty"`

	Open       OpenStep    `yaml:"open"`
	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`

	// Puzzle is the normalized definition, resolved by LoadScenario.
	Puzzle puzzle.Definition `yaml:"-"`
}

// Participant is one member of the table.
type Participant struct {
	ID    string `yaml:"id"`
	Owner bool   `yaml:"owner,omitempty"`
}

// OpenStep opens the scenario's session before the steps run.
type OpenStep struct {
	By            string   `yaml:"by"`
	Session       string   `yaml:"session,omitempty"`
	Targets       []string `yaml:"targets,omitempty"`
	IncludeOwners bool     `yaml:"includeOwners,omitempty"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Place         *Move      `yaml:"place,omitempty"`
	Tray          *Move      `yaml:"tray,omitempty"`
	Deliver       bool       `yaml:"deliver,omitempty"`
	Advance       string     `yaml:"advance,omitempty"`
	DuplicateLast string     `yaml:"duplicate-last,omitempty"`
	Fault         *FaultStep `yaml:"fault,omitempty"`
	Release       *Release   `yaml:"release,omitempty"`
	Ping          string     `yaml:"ping,omitempty"`
}

// Move moves a piece on a participant's board. Place puts it in Slot;
// Tray returns it to the tray.
type Move struct {
	By      string `yaml:"by"`
	Piece   string `yaml:"piece"`
	Slot    int    `yaml:"slot,omitempty"`
	Session string `yaml:"session,omitempty"`
}

// FaultStep sets what happens to deliveries addressed to To.
type FaultStep struct {
	To string `yaml:"to"`
	// Network is "primary", "fallback" or empty for both.
	Network string `yaml:"network,omitempty"`
	// Mode is deliver, drop, duplicate or hold.
	Mode string `yaml:"mode"`
}

// Release hands held deliveries over, newest first when Reverse is set.
type Release struct {
	Reverse bool `yaml:"reverse,omitempty"`
}

// Assertion checks the outcome of a scenario.
type Assertion struct {
	Type        string `yaml:"type"`
	Participant string `yaml:"participant,omitempty"`
	Session     string `yaml:"session,omitempty"`

	// Slots and Tray are the expected arrangement (board). "_" is an
	// empty slot.
	Slots  []string `yaml:"slots,omitempty"`
	Tray   []string `yaml:"tray,omitempty"`
	Solved *bool    `yaml:"solved,omitempty"`

	// Count is the expected number of accepted remote states (accepted),
	// side effects (solved), acknowledgements (acks) or ledger rows
	// (ledger).
	Count *int `yaml:"count,omitempty"`
	// By is the expected solver (solved, ledger).
	By string `yaml:"by,omitempty"`
	// Status is the expected session status (status).
	Status string `yaml:"status,omitempty"`
}

// Assertion types.
const (
	AssertBoard    = "board"
	AssertNoBoard  = "no_board"
	AssertAccepted = "accepted"
	AssertSolved   = "solved"
	AssertStatus   = "status"
	AssertAcks     = "acks"
	AssertLedger   = "ledger"
)

// Network names.
const (
	NetworkPrimary  = "primary"
	NetworkFallback = "fallback"
)

// LoadScenario reads a scenario file, rejecting unknown fields, and
// resolves its definition.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := s.resolveDefinition(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) resolveDefinition(baseDir string) error {
	inline := s.Definition.Kind != 0
	switch {
	case inline && s.DefinitionFile != "":
		return fmt.Errorf("definition and definitionFile are mutually exclusive")
	case s.DefinitionFile != "":
		path := s.DefinitionFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		def, err := puzzle.LoadFile(path)
		if err != nil {
			return err
		}
		s.Puzzle = def
	case inline:
		data, err := yaml.Marshal(&s.Definition)
		if err != nil {
			return fmt.Errorf("definition: %w", err)
		}
		def, err := puzzle.Load(data, puzzle.FormatYAML, s.Name+".definition")
		if err != nil {
			return err
		}
		s.Puzzle = def
	default:
		return fmt.Errorf("definition or definitionFile is required")
	}
	return nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Participants) < 2 {
		return fmt.Errorf("at least two participants are required")
	}

	ids := make(map[string]bool, len(s.Participants))
	for i, p := range s.Participants {
		if p.ID == "" {
			return fmt.Errorf("participants[%d]: id is required", i)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("participants[%d]: duplicate id %q", i, p.ID)
		}
		ids[p.ID] = p.Owner
	}
	known := func(id string) bool { _, ok := ids[id]; return ok }

	if owner, ok := ids[s.Open.By]; !ok || !owner {
		return fmt.Errorf("open.by must name an owner, got %q", s.Open.By)
	}
	for _, t := range s.Open.Targets {
		if !known(t) {
			return fmt.Errorf("open.targets: unknown participant %q", t)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, known); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, known); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, known func(string) bool) error {
	set := 0
	for _, on := range []bool{
		step.Place != nil,
		step.Tray != nil,
		step.Deliver,
		step.Advance != "",
		step.DuplicateLast != "",
		step.Fault != nil,
		step.Release != nil,
		step.Ping != "",
	} {
		if on {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action per step, got %d", set)
	}

	switch {
	case step.Place != nil:
		return validateMove(*step.Place, known)
	case step.Tray != nil:
		return validateMove(*step.Tray, known)
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("advance must be positive, got %s", step.Advance)
		}
	case step.DuplicateLast != "":
		if !known(step.DuplicateLast) {
			return fmt.Errorf("duplicate-last: unknown participant %q", step.DuplicateLast)
		}
	case step.Ping != "":
		if !known(step.Ping) {
			return fmt.Errorf("ping: unknown participant %q", step.Ping)
		}
	case step.Fault != nil:
		f := step.Fault
		if !known(f.To) {
			return fmt.Errorf("fault: unknown participant %q", f.To)
		}
		if _, ok := faultModes[f.Mode]; !ok {
			return fmt.Errorf("fault: unknown mode %q", f.Mode)
		}
		switch f.Network {
		case "", NetworkPrimary, NetworkFallback:
		default:
			return fmt.Errorf("fault: unknown network %q", f.Network)
		}
	}
	return nil
}

func validateMove(m Move, known func(string) bool) error {
	if !known(m.By) {
		return fmt.Errorf("unknown participant %q", m.By)
	}
	if m.Piece == "" {
		return fmt.Errorf("piece is required")
	}
	if m.Slot < 0 {
		return fmt.Errorf("slot must be non-negative")
	}
	return nil
}

func validateAssertion(a Assertion, known func(string) bool) error {
	if a.Type != AssertLedger && !known(a.Participant) {
		return fmt.Errorf("%s: unknown participant %q", a.Type, a.Participant)
	}
	switch a.Type {
	case AssertBoard:
		if a.Slots == nil && a.Tray == nil && a.Solved == nil {
			return fmt.Errorf("board: slots, tray or solved is required")
		}
	case AssertNoBoard:
	case AssertAccepted, AssertSolved, AssertAcks, AssertLedger:
		if a.Count == nil {
			return fmt.Errorf("%s: count is required", a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", a.Type)
		}
	case AssertStatus:
		if a.Status == "" {
			return fmt.Errorf("status: status is required")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
