package protocol

import (
	"bytes"
	"errors"

	"pxflut/internal/pixel"
)

var (
	keywordHelp = []byte("HELP")
	keywordSize = []byte("SIZE")
	keywordPX   = []byte("PX")
)

var errCoordinateRange = errors.New("coordinate out of range")

// maxTokens is one more than the longest valid command so that trailing
// garbage is detected without scanning the rest of the line.
const maxTokens = 5

// Parse turns one line (without its trailing newline) into a Command.
// Tokens are separated by runs of whitespace and the keyword is
// case-insensitive.  Any other shape yields a *ParseError.
func Parse(line []byte) (Command, error) {
	var toks [maxTokens][]byte
	n := tokenize(line, &toks)
	if n == 0 {
		return Command{}, newParseError(ErrEmpty, nil, nil)
	}

	kw := toks[0]
	switch {
	case bytes.EqualFold(kw, keywordPX):
		return parsePX(toks[:n])
	case bytes.EqualFold(kw, keywordSize):
		if n != 1 {
			return Command{}, newParseError(ErrWrongArity, line, nil)
		}
		return QuerySize(), nil
	case bytes.EqualFold(kw, keywordHelp):
		if n != 1 {
			return Command{}, newParseError(ErrWrongArity, line, nil)
		}
		return Help(), nil
	default:
		return Command{}, newParseError(ErrUnknownCommand, kw, nil)
	}
}

func parsePX(toks [][]byte) (Command, error) {
	if len(toks) != 3 && len(toks) != 4 {
		return Command{}, newParseError(ErrWrongArity, toks[0], nil)
	}
	x, err := parseCoordinate(toks[1])
	if err != nil {
		return Command{}, newParseError(ErrInvalidCoordinate, toks[1], err)
	}
	y, err := parseCoordinate(toks[2])
	if err != nil {
		return Command{}, newParseError(ErrInvalidCoordinate, toks[2], err)
	}
	if len(toks) == 3 {
		return GetPixel(x, y), nil
	}
	c, err := pixel.ParseColor(toks[3])
	if err != nil {
		return Command{}, newParseError(ErrInvalidColor, toks[3], err)
	}
	return SetPixel(x, y, c), nil
}

// parseCoordinate accepts unsigned base-10 digits up to MaxCoordinate.
func parseCoordinate(tok []byte) (int, error) {
	v := 0
	for _, b := range tok {
		if b < '0' || b > '9' {
			return 0, errors.New("not a decimal number")
		}
		v = v*10 + int(b-'0')
		if v > MaxCoordinate {
			return 0, errCoordinateRange
		}
	}
	return v, nil
}

// tokenize splits line on whitespace into toks and returns the token
// count, capped at maxTokens.
func tokenize(line []byte, toks *[maxTokens][]byte) int {
	n := 0
	i := 0
	for i < len(line) && n < maxTokens {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i == len(line) {
			break
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		toks[n] = line[start:i]
		n++
	}
	return n
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\v', '\f':
		return true
	}
	return false
}
