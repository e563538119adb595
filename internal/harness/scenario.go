package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a multi-client conversation replayed against the in-memory
// broker. Clients listed in Clients join before the first step; later
// joiners use a join step.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clients join in order before the first step.
	Clients []string `yaml:"clients"`

	// Retained seeds the snapshot channel, as if a client that has since
	// left had persisted it.
	Retained []SeedMessage `yaml:"retained,omitempty"`

	// Redelivery makes the broker deliver every live message 1+n times.
	Redelivery int `yaml:"redelivery,omitempty"`

	// BootstrapTimeout overrides the session default.
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout,omitempty"`

	// Steps run in order. The harness waits for every session to go quiet
	// between steps.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedMessage is a retained history entry.
type SeedMessage struct {
	ID     string `yaml:"id"`
	Text   string `yaml:"text"`
	Sender string `yaml:"sender"`
}

// Step is one thing a client (or the network, or time) does.
type Step struct {
	// Do is the step kind, one of the Step* constants.
	Do string `yaml:"do"`

	// Client acts. Required for every kind except advance, bootstrap and
	// inject.
	Client string `yaml:"client,omitempty"`

	// Text is the message body for send.
	Text string `yaml:"text,omitempty"`

	// ReplyTo quotes a message for send.
	ReplyTo string `yaml:"reply_to,omitempty"`

	// Message targets react and delete.
	Message string `yaml:"message,omitempty"`

	// Emoji for react.
	Emoji string `yaml:"emoji,omitempty"`

	// Duration for advance.
	Duration time.Duration `yaml:"duration,omitempty"`

	// Payload is published raw on the live channel by inject.
	Payload string `yaml:"payload,omitempty"`

	// ExpectError, if set, is a substring the step's error must contain.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step kinds.
const (
	StepJoin      = "join"
	StepLeave     = "leave"
	StepSend      = "send"
	StepReact     = "react"
	StepDelete    = "delete"
	StepClear     = "clear"
	StepInterrupt = "interrupt"
	StepRestore   = "restore"
	StepAdvance   = "advance"
	StepBootstrap = "bootstrap"
	StepInject    = "inject"
)

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Client whose view is checked (log, reactions, message, status).
	Client string `yaml:"client,omitempty"`

	// Clients limits converged to a subset. Empty means every connected
	// client.
	Clients []string `yaml:"clients,omitempty"`

	// IDs is the exact expected id order (log, retained).
	IDs []string `yaml:"ids,omitempty"`

	// Message and Emoji select a reaction set or a message.
	Message string `yaml:"message,omitempty"`
	Emoji   string `yaml:"emoji,omitempty"`

	// Actors is the expected reactor set, order-insensitive.
	Actors []string `yaml:"actors,omitempty"`

	// Text and Quote are expected message text and reply quote text.
	Text  string `yaml:"text,omitempty"`
	Quote string `yaml:"quote,omitempty"`

	// Status is the expected connection status label.
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertLog       = "log"
	AssertConverged = "converged"
	AssertReactions = "reactions"
	AssertMessage   = "message"
	AssertRetained  = "retained"
	AssertStatus    = "status"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so "assertion:" vs "assertions:" is caught.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Redelivery < 0 {
		return fmt.Errorf("redelivery must be non-negative")
	}

	known := make(map[string]bool)
	for i, c := range s.Clients {
		if c == "" {
			return fmt.Errorf("clients[%d]: name is required", i)
		}
		if known[c] {
			return fmt.Errorf("clients[%d]: duplicate client %q", i, c)
		}
		known[c] = true
	}

	for i, m := range s.Retained {
		if m.ID == "" || m.Sender == "" {
			return fmt.Errorf("retained[%d]: id and sender are required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, known); err != nil {
			return err
		}
		if step.Do == StepJoin {
			known[step.Client] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, known); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, known map[string]bool) error {
	switch step.Do {
	case StepAdvance:
		if step.Duration <= 0 {
			return fmt.Errorf("steps[%d]: duration must be positive for advance", index)
		}
		return nil
	case StepBootstrap:
		return nil
	case StepInject:
		if step.Payload == "" {
			return fmt.Errorf("steps[%d]: payload is required for inject", index)
		}
		return nil
	case StepJoin:
		if step.Client == "" {
			return fmt.Errorf("steps[%d]: client is required for join", index)
		}
		if known[step.Client] {
			return fmt.Errorf("steps[%d]: client %q already joined", index, step.Client)
		}
		return nil
	case StepLeave, StepSend, StepReact, StepDelete, StepClear, StepInterrupt, StepRestore:
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, step.Do)
	}

	if !known[step.Client] {
		return fmt.Errorf("steps[%d]: unknown client %q", index, step.Client)
	}
	switch step.Do {
	case StepReact:
		if step.Message == "" || step.Emoji == "" {
			return fmt.Errorf("steps[%d]: message and emoji are required for react", index)
		}
	case StepDelete:
		if step.Message == "" {
			return fmt.Errorf("steps[%d]: message is required for delete", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, known map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needsClient := true
	switch a.Type {
	case AssertLog:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for log (use [] for empty)", index)
		}
	case AssertReactions:
		if a.Message == "" || a.Emoji == "" {
			return fmt.Errorf("assertions[%d]: message and emoji are required for reactions", index)
		}
	case AssertMessage:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for message", index)
		}
	case AssertStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for status", index)
		}
	case AssertRetained:
		needsClient = false
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for retained (use [] for empty)", index)
		}
	case AssertConverged:
		needsClient = false
		for _, c := range a.Clients {
			if !known[c] {
				return fmt.Errorf("assertions[%d]: unknown client %q", index, c)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if needsClient && !known[a.Client] {
		return fmt.Errorf("assertions[%d]: unknown client %q", index, a.Client)
	}
	return nil
}
