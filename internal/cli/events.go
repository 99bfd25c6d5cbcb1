package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/puzzlesync/internal/board"
	"github.com/roach88/puzzlesync/internal/engine"
)

// eventStream serializes events written by the coordinator loop, board
// observers and the command itself.
type eventStream struct {
	mu    sync.Mutex
	out   *OutputFormatter
	clock engine.Clock
}

func newEventStream(out *OutputFormatter, clock engine.Clock) *eventStream {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	return &eventStream{out: out, clock: clock}
}

func (s *eventStream) emit(name string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.out.Event(name, s.clock.Now(), data); err != nil {
		s.out.VerboseLog("write %s event: %v", name, err)
	}
}

// BoardView is the streamed form of a board change.
type BoardView struct {
	SessionID string   `json:"sessionId"`
	Remote    bool     `json:"remote"`
	Solved    bool     `json:"solved"`
	Tray      []string `json:"tray"`
	Slots     []string `json:"slots"`
}

// Text renders the arrangement on one line, "_" marking empty slots.
func (v BoardView) Text() string {
	slots := make([]string, len(v.Slots))
	for i, id := range v.Slots {
		if id == "" {
			id = "_"
		}
		slots[i] = id
	}
	origin := "local"
	if v.Remote {
		origin = "remote"
	}
	line := fmt.Sprintf("session=%s %s slots=[%s] tray=[%s]",
		v.SessionID, origin, strings.Join(slots, " "), strings.Join(v.Tray, " "))
	if v.Solved {
		line += " solved"
	}
	return line
}

// SolvedView is the streamed form of a solved side effect.
type SolvedView struct {
	SessionID string `json:"sessionId"`
	SolvedBy  string `json:"solvedBy"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	Hook      string `json:"hook,omitempty"`
}

// Text renders the solve on one line.
func (v SolvedView) Text() string {
	line := fmt.Sprintf("session=%s by=%s", v.SessionID, v.SolvedBy)
	if v.Title != "" {
		line += fmt.Sprintf(" title=%q", v.Title)
	}
	if v.Message != "" {
		line += fmt.Sprintf(" message=%q", v.Message)
	}
	if v.Hook != "" {
		line += " hook=" + v.Hook
	}
	return line
}

// observer streams every board change.
func (s *eventStream) observer() board.Observer {
	return func(_ *board.Board, ch board.Change) {
		s.emit("board", BoardView{
			SessionID: ch.SessionID,
			Remote:    ch.Remote,
			Solved:    ch.Solved,
			Tray:      ch.State.TrayOrder,
			Slots:     ch.State.SlotAssignment,
		})
	}
}

// solvedSink streams each solved side effect. The hook named by the
// definition is reported, not run.
func (s *eventStream) solvedSink() engine.SolvedSink {
	return engine.SolvedFunc(func(_ context.Context, ev engine.SolvedEvent) error {
		view := SolvedView{SessionID: ev.SessionID, SolvedBy: ev.SolvedBy}
		if ev.Definition != nil {
			view.Title = ev.Definition.Title
			view.Message = ev.Definition.SolvedMessage
			view.Hook = ev.Definition.OnSolvedHook
		}
		s.emit("solved", view)
		return nil
	})
}
