// Package protocol implements the Pixelflut line grammar: turning one
// newline-stripped line into a Command and encoding the server's
// replies.
//
//	HELP                   -> one line describing the commands
//	SIZE                   -> SIZE <w> <h>
//	PX <x> <y>             -> PX <x> <y> <rrggbb>
//	PX <x> <y> <rrggbb>    -> (no reply)
//	PX <x> <y> <rrggbbaa>  -> (no reply, alpha-blended)
package protocol

import "pxflut/internal/pixel"

// MaxCoordinate is the largest coordinate value the parser accepts.
// Larger numbers fail instead of wrapping.
const MaxCoordinate = 1<<16 - 1

// HelpText is the single-line reply to HELP.
const HelpText = "HELP Commands: HELP | SIZE | PX <x> <y> | PX <x> <y> <rrggbb[aa]>"

// Kind identifies a command variant.
type Kind int

const (
	KindHelp Kind = iota + 1
	KindSize
	KindGetPixel
	KindSetPixel
)

func (k Kind) String() string {
	switch k {
	case KindHelp:
		return "help"
	case KindSize:
		return "size"
	case KindGetPixel:
		return "get"
	case KindSetPixel:
		return "set"
	default:
		return "unknown"
	}
}

// Point is a canvas coordinate.
type Point struct {
	X, Y int
}

// Command is one parsed protocol line.  Only the fields relevant to Kind
// are set: Point for KindGetPixel and KindSetPixel, Color for
// KindSetPixel.
type Command struct {
	Kind  Kind
	Point Point
	Color pixel.Color
}

// Help returns the HELP command.
func Help() Command { return Command{Kind: KindHelp} }

// QuerySize returns the SIZE command.
func QuerySize() Command { return Command{Kind: KindSize} }

// GetPixel returns a pixel read command.
func GetPixel(x, y int) Command {
	return Command{Kind: KindGetPixel, Point: Point{X: x, Y: y}}
}

// SetPixel returns a pixel write command.
func SetPixel(x, y int, c pixel.Color) Command {
	return Command{Kind: KindSetPixel, Point: Point{X: x, Y: y}, Color: c}
}
