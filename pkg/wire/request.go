package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// REQUEST payloads carry one ASCII command line, no trailing newline:
//
//	GET /<name>
//	RESEND <seq>

var ErrRequestSyntax = errors.New("malformed request command")

type CommandKind byte

const (
	CommandGet CommandKind = iota
	CommandResend
)

type Command struct {
	Kind CommandKind
	Name string // CommandGet
	Seq  uint32 // CommandResend
}

// ParseCommand interprets a REQUEST payload. Anything that is not exactly
// one well-formed command yields ErrRequestSyntax; the caller decides
// whether that earns an ERROR reply or silence.
func ParseCommand(payload []byte) (Command, error) {
	line := string(payload)
	verb, rest, ok := strings.Cut(line, " ")
	if !ok || rest == "" {
		return Command{}, fmt.Errorf("%w: %q", ErrRequestSyntax, line)
	}
	switch verb {
	case "GET":
		name, found := strings.CutPrefix(rest, "/")
		if !found || name == "" || strings.ContainsRune(name, ' ') {
			return Command{}, fmt.Errorf("%w: %q", ErrRequestSyntax, line)
		}
		return Command{Kind: CommandGet, Name: name}, nil
	case "RESEND":
		seq, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q", ErrRequestSyntax, line)
		}
		return Command{Kind: CommandResend, Seq: uint32(seq)}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrRequestSyntax, line)
	}
}

func GetFrame(name string) Frame {
	return Frame{Type: TypeRequest, Payload: []byte("GET /" + name)}
}

func ResendFrame(seq uint32) Frame {
	return Frame{Type: TypeRequest, Payload: []byte("RESEND " + strconv.FormatUint(uint64(seq), 10))}
}
