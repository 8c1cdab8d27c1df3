package services

import (
	"context"
	"iter"
	"strings"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// ContentSink receives the user-visible field carved out of a stream.
// Chunks are raw JSON string content; escape sequences are left intact.
type ContentSink interface {
	Content(messageID, chunk string)
	EndOfField(messageID string)
}

type discardSink struct{}

func (discardSink) Content(string, string) {}
func (discardSink) EndOfField(string)      {}

// StreamState is the per-stream demultiplexer state. It is created when a
// stream begins and dropped when the stream ends.
type StreamState struct {
	startMarker string
	fieldMarker string
	messageID   string

	finding   string
	complete  strings.Builder
	inContent bool
}

// NewStreamState prepares the state for one stream.
func NewStreamState(messageID, startMarker, fieldMarker string) *StreamState {
	return &StreamState{
		startMarker: startMarker,
		fieldMarker: fieldMarker,
		messageID:   messageID,
	}
}

// InContent reports whether the state is currently inside the content field.
func (s *StreamState) InContent() bool {
	return s.inContent
}

// Feed consumes one fragment and emits any content it completes.
func (s *StreamState) Feed(fragment string, sink ContentSink) {
	s.complete.WriteString(fragment)
	s.finding += fragment

	for {
		if !s.inContent && !s.enterContent() {
			return
		}

		k, pendingEscape := unescapedQuote(s.finding)
		if k < 0 {
			emit := s.finding
			s.finding = ""
			if pendingEscape {
				// hold the lone backslash: the escaped character is in the next fragment
				emit, s.finding = emit[:len(emit)-1], emit[len(emit)-1:]
			}
			if emit != "" {
				sink.Content(s.messageID, emit)
			}
			return
		}

		if k > 0 {
			sink.Content(s.messageID, s.finding[:k])
		}
		sink.EndOfField(s.messageID)
		s.finding = s.finding[k+1:]
		s.inContent = false
	}
}

// FullText returns everything fed so far with the stream sentinel removed.
func (s *StreamState) FullText() string {
	return strings.ReplaceAll(s.complete.String(), domain.StreamSentinel, "")
}

// enterContent looks for start marker then field marker in the finding
// buffer. It trims the buffer so that it never grows without bound while
// waiting for a marker that was split across fragments.
func (s *StreamState) enterContent() bool {
	i := strings.Index(s.finding, s.startMarker)
	if i < 0 {
		if keep := len(s.startMarker) - 1; len(s.finding) > keep {
			s.finding = s.finding[len(s.finding)-keep:]
		}
		return false
	}

	afterStart := i + len(s.startMarker)
	j := strings.Index(s.finding[afterStart:], s.fieldMarker)
	if j < 0 {
		s.finding = s.finding[i:]
		return false
	}

	s.finding = s.finding[afterStart+j+len(s.fieldMarker):]
	s.inContent = true
	return true
}

// unescapedQuote returns the offset of the first double quote that is not
// escaped, or -1. pendingEscape is true when the buffer ends in the middle
// of an escape sequence.
func unescapedQuote(buf string) (int, bool) {
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '\\':
			if i+1 == len(buf) {
				return -1, true
			}
			i++
		case '"':
			return i, false
		}
	}
	return -1, false
}

// Demultiplexer separates a narrow content field from a streamed structured
// payload while still assembling the full payload for later parsing.
type Demultiplexer struct {
	StartMarker string
	FieldMarker string
}

// Run drains fragments, forwarding content to sink, and returns the full
// raw text. The sentinel fragment is skipped. On a stream error or context
// cancellation the text received so far is returned with the error.
func (d Demultiplexer) Run(ctx context.Context, messageID string, fragments iter.Seq2[string, error], sink ContentSink) (string, error) {
	if sink == nil {
		sink = discardSink{}
	}
	state := NewStreamState(messageID, d.StartMarker, d.FieldMarker)

	for fragment, err := range fragments {
		if err != nil {
			return state.FullText(), err
		}
		if err := ctx.Err(); err != nil {
			return state.FullText(), err
		}
		if fragment == domain.StreamSentinel {
			continue
		}
		state.Feed(fragment, sink)
	}
	return state.FullText(), nil
}
