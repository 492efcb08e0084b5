package stream

import (
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
)

// LogEntry records one folded commit in a state's history.
type LogEntry struct {
	CID  cid.Cid
	Kind CommitKind
}

// State is the derived view of a stream at its current tip: the left fold of
// the verified chain in genesis-to-tip order. It is rebuilt on demand and
// never stored authoritatively; Record keeps only the accepted pointer.
type State struct {
	ID          ID
	Model       *ID
	Controllers []string
	Content     json.RawMessage
	Tip         cid.Cid
	Log         []LogEntry
}

// Fold derives the state of a chain ordered genesis-first. The initial state
// is {content: null, controllers: [], model: none, tip: genesis}; every
// commit advances the tip, signed commits mutate content per their payload,
// and anchor commits advance the tip only.
func Fold(id ID, commits []Commit) (*State, error) {
	if !id.Type.Supported() {
		return nil, NewUnsupportedStreamTypeError(id.Type)
	}
	if len(commits) == 0 {
		return nil, NewEmptyStreamError(id)
	}
	initial := &State{ID: id, Controllers: []string{}, Tip: id.Genesis}
	return initial.Apply(commits)
}

// Apply folds further commits onto s and returns the advanced state; s is
// left untouched. Fold(id, chain) equals folding any prefix and applying the
// suffix, so incremental derivation from a cached state is sound.
func (s *State) Apply(commits []Commit) (*State, error) {
	next := s.clone()
	for i := range commits {
		if err := next.applyCommit(&commits[i]); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (s *State) applyCommit(c *Commit) error {
	switch v := c.Value.(type) {
	case *Anchor:
		s.Log = append(s.Log, LogEntry{CID: c.CID, Kind: KindAnchor})

	case *Signed:
		payload, err := decodePayload(v.Payload)
		if err != nil {
			return fmt.Errorf("commit %s: %w", c.CID, err)
		}
		if payload.IsGenesis() && len(s.Log) == 0 {
			if err := s.applyGenesis(payload); err != nil {
				return fmt.Errorf("commit %s: %w", c.CID, err)
			}
			s.Log = append(s.Log, LogEntry{CID: c.CID, Kind: KindGenesis})
		} else {
			content, err := payload.Apply(s.Content)
			if err != nil {
				return fmt.Errorf("commit %s: %w", c.CID, err)
			}
			s.Content = content
			s.Log = append(s.Log, LogEntry{CID: c.CID, Kind: KindSigned})
		}

	default:
		return fmt.Errorf("commit %s: unknown commit value %T", c.CID, c.Value)
	}

	s.Tip = c.CID
	return nil
}

func (s *State) applyGenesis(p *Payload) error {
	s.Controllers = append([]string{}, p.Header.Controllers...)
	if p.Header.Model != "" {
		model, err := ParseID(p.Header.Model)
		if err != nil {
			return fmt.Errorf("genesis header model: %w", err)
		}
		s.Model = &model
	}
	if len(p.Data) > 0 {
		s.Content = append(json.RawMessage{}, p.Data...)
	}
	return nil
}

func (s *State) clone() *State {
	next := &State{
		ID:          s.ID,
		Controllers: append([]string{}, s.Controllers...),
		Tip:         s.Tip,
		Log:         append([]LogEntry{}, s.Log...),
	}
	if s.Model != nil {
		model := *s.Model
		next.Model = &model
	}
	if s.Content != nil {
		next.Content = append(json.RawMessage{}, s.Content...)
	}
	return next
}

// MarshalJSON renders the state with string-form identifiers, which is what
// CLI output wants; dag-json CID objects stay internal.
func (s *State) MarshalJSON() ([]byte, error) {
	type logEntry struct {
		Cid  string `json:"cid"`
		Kind string `json:"kind"`
	}
	out := struct {
		StreamID    string          `json:"streamId"`
		Model       *string         `json:"model,omitempty"`
		Controllers []string        `json:"controllers"`
		Content     json.RawMessage `json:"content"`
		Tip         string          `json:"tip"`
		Log         []logEntry      `json:"log"`
	}{
		StreamID:    s.ID.String(),
		Controllers: s.Controllers,
		Content:     s.Content,
		Tip:         s.Tip.String(),
		Log:         make([]logEntry, len(s.Log)),
	}
	if s.Model != nil {
		model := s.Model.String()
		out.Model = &model
	}
	if out.Content == nil {
		out.Content = json.RawMessage("null")
	}
	for i, entry := range s.Log {
		out.Log[i] = logEntry{Cid: entry.CID.String(), Kind: string(entry.Kind)}
	}
	return json.Marshal(out)
}
