package client

import (
	"fmt"
	"time"

	"github.com/Mmx233/QRcon/config"
	"github.com/Mmx233/QRcon/protocol"
)

// Verdict tells the connection what to do with a frame carrying the awaited request id.
type Verdict int

const (
	Continue Verdict = iota // buffer the fragment and keep reading
	Complete                // buffer the fragment and deliver the response
	Skip                    // drop the frame and keep reading
)

// Terminator decides when a possibly fragmented response is complete.
// The protocol has no end-of-response marker, so the rule is a policy
// injected into the connection rather than a constant.
type Terminator interface {
	// Classify is called for every frame whose id matches the awaited request.
	Classify(req, frame protocol.Packet) Verdict
	// Marker reports whether an empty marker frame with its own id must follow
	// each command. The echo of that id completes the response.
	Marker() bool
	// Grace is how long to wait for another frame to begin once at least one
	// fragment is buffered. Zero disables the grace window.
	Grace() time.Duration
}

// SinglePacket treats the first frame as the whole response.
type SinglePacket struct{}

func (SinglePacket) Classify(_, _ protocol.Packet) Verdict { return Complete }
func (SinglePacket) Marker() bool                          { return false }
func (SinglePacket) Grace() time.Duration                  { return 0 }

// GraceWindow keeps buffering fragments until no new frame starts within Window.
type GraceWindow struct {
	Window time.Duration
}

func (GraceWindow) Classify(_, _ protocol.Packet) Verdict { return Continue }
func (GraceWindow) Marker() bool                          { return false }

func (g GraceWindow) Grace() time.Duration {
	if g.Window <= 0 {
		return config.DefaultGraceWindow
	}
	return g.Window
}

// EmptyMarker sends an empty response-typed frame after every command.
// Servers process requests in order and mirror that frame, so its echo
// arrives after the last fragment of the command's response.
type EmptyMarker struct{}

func (EmptyMarker) Classify(_, _ protocol.Packet) Verdict { return Continue }
func (EmptyMarker) Marker() bool                          { return true }
func (EmptyMarker) Grace() time.Duration                  { return 0 }

// authTerminator completes a login exchange on the auth response.
// Some servers send an empty response-typed frame before it, which is skipped.
type authTerminator struct{}

func (authTerminator) Classify(_, frame protocol.Packet) Verdict {
	if frame.Type == protocol.TypeMultiPacketResponse {
		return Skip
	}
	return Complete
}
func (authTerminator) Marker() bool         { return false }
func (authTerminator) Grace() time.Duration { return 0 }

// NewTerminator builds the termination policy selected in the configuration.
func NewTerminator(f config.Fragment) (Terminator, error) {
	switch f.Mode {
	case config.FragmentSingle, "":
		return SinglePacket{}, nil
	case config.FragmentGrace:
		return GraceWindow{Window: f.GraceWindow}, nil
	case config.FragmentMarker:
		return EmptyMarker{}, nil
	default:
		return nil, fmt.Errorf("unknown fragment mode %q", f.Mode)
	}
}
