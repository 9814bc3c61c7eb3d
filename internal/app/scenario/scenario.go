package scenario

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"lightbot/internal/app/orchestrator"
	"lightbot/internal/app/session_manager"
)

// Scenario is a scripted conversation replayed through the engine.
type Scenario struct {
	Name       string   `yaml:"name"`
	SessionID  string   `yaml:"session_id"`
	SearchMode string   `yaml:"search_mode"`
	Stream     bool     `yaml:"stream"`
	Messages   []string `yaml:"messages"`

	mode orchestrator.SearchMode
}

// LoadScenario loads a Scenario from a YAML file and applies defaults/validation.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var scen Scenario
	if err := yaml.NewDecoder(f).Decode(&scen); err != nil {
		return nil, err
	}
	if err := scen.setDefaultsAndValidate(path); err != nil {
		return nil, err
	}
	log.Infof("Loaded '%s' scenario from %s", scen.Name, path)
	return &scen, nil
}

// setDefaultsAndValidate sets default values and validates the scenario.
func (s *Scenario) setDefaultsAndValidate(filename string) error {
	if s.Name == "" {
		s.Name = filename
	}
	if s.SessionID == "" {
		s.SessionID = "replay-" + session_manager.GenerateSessionID()
	}
	mode, err := orchestrator.ParseSearchMode(s.SearchMode)
	if err != nil {
		return err
	}
	s.mode = mode
	s.SearchMode = string(mode)
	if len(s.Messages) == 0 {
		return fmt.Errorf("no messages defined in scenario")
	}
	return nil
}

func (s *Scenario) Mode() orchestrator.SearchMode {
	return s.mode
}

// Chatter is the part of the engine a replay drives.
type Chatter interface {
	Chat(ctx context.Context, message, sessionID string, mode orchestrator.SearchMode) (string, error)
	ChatStream(ctx context.Context, message, sessionID string, mode orchestrator.SearchMode) iter.Seq2[string, error]
}

// Turn is the outcome of one replayed message.
type Turn struct {
	Index    int
	Message  string
	Answer   string
	Duration time.Duration
}

// Run replays every message in order on the scenario's session. onFragment,
// if set, sees streamed fragments as they arrive. Run stops at the first
// failing turn.
func Run(ctx context.Context, engine Chatter, s *Scenario, onFragment func(string)) ([]Turn, error) {
	turns := make([]Turn, 0, len(s.Messages))
	for i := range s.Messages {
		turn, err := RunTurn(ctx, engine, s, i, onFragment)
		if err != nil {
			return turns, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// RunTurn replays the i-th message only.
func RunTurn(ctx context.Context, engine Chatter, s *Scenario, i int, onFragment func(string)) (Turn, error) {
	if i < 0 || i >= len(s.Messages) {
		return Turn{}, fmt.Errorf("turn %d out of range", i+1)
	}
	msg := s.Messages[i]
	startTime := time.Now()
	var answer string
	var err error
	if s.Stream {
		answer, err = drain(engine.ChatStream(ctx, msg, s.SessionID, s.mode), onFragment)
	} else {
		answer, err = engine.Chat(ctx, msg, s.SessionID, s.mode)
	}
	if err != nil {
		return Turn{}, fmt.Errorf("turn %d: %w", i+1, err)
	}
	turn := Turn{Index: i + 1, Message: msg, Answer: answer, Duration: time.Since(startTime)}
	log.Debugf("Scenario '%s' turn %d took %s", s.Name, turn.Index, turn.Duration)
	return turn, nil
}

func drain(seq iter.Seq2[string, error], onFragment func(string)) (string, error) {
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return b.String(), err
		}
		if onFragment != nil {
			onFragment(frag)
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}
