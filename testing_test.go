package wireloop

import (
	"bytes"

	"github.com/pior/wireloop/buffet"
)

// Test grammars. Messages are newline-terminated lines; a '!' anywhere in a
// line makes it malformed.

func parseLine(input buffet.Roll) (buffet.Roll, string, error) {
	line, rest, err := splitLine(input)
	if err != nil {
		return buffet.Roll{}, "", err
	}
	return rest, line.String(), nil
}

// parseLineView is parseLine without the copy: the result aliases the buffer.
func parseLineView(input buffet.Roll) (buffet.Roll, buffet.Roll, error) {
	line, rest, err := splitLine(input)
	if err != nil {
		return buffet.Roll{}, buffet.Roll{}, err
	}
	return rest, line, nil
}

func splitLine(input buffet.Roll) (line, rest buffet.Roll, err error) {
	i := input.Index('\n')
	if i < 0 {
		if bytes.IndexByte(input.Bytes(), '!') >= 0 {
			return line, rest, Malformed(input, "bang in line")
		}
		return line, rest, ErrIncomplete
	}
	line = input.Slice(0, i)
	if line.Index('!') >= 0 {
		return buffet.Roll{}, buffet.Roll{}, Malformed(input.Slice(0, i+1), "bang in line")
	}
	return line, input.SliceFrom(i + 1), nil
}

func parseNever(input buffet.Roll) (buffet.Roll, struct{}, error) {
	return buffet.Roll{}, struct{}{}, ErrIncomplete
}
