package protocol

import (
	"strconv"

	"pxflut/internal/pixel"
)

// AppendHelp appends the HELP reply line.
func AppendHelp(buf []byte) []byte {
	buf = append(buf, HelpText...)
	return append(buf, '\n')
}

// AppendSize appends "SIZE <w> <h>\n".
func AppendSize(buf []byte, w, h int) []byte {
	buf = append(buf, "SIZE "...)
	buf = strconv.AppendInt(buf, int64(w), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(h), 10)
	return append(buf, '\n')
}

// AppendPixel appends "PX <x> <y> <rrggbb>\n".
func AppendPixel(buf []byte, x, y int, c pixel.Color) []byte {
	buf = append(buf, "PX "...)
	buf = strconv.AppendInt(buf, int64(x), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(y), 10)
	buf = append(buf, ' ')
	buf = c.AppendHex6(buf)
	return append(buf, '\n')
}

// AppendError appends "ERR <reason>\n" for a rejected line.
func AppendError(buf []byte, err error) []byte {
	buf = append(buf, "ERR "...)
	if pe, ok := IsParseError(err); ok {
		buf = append(buf, pe.Kind.String()...)
	} else {
		buf = append(buf, err.Error()...)
	}
	return append(buf, '\n')
}
