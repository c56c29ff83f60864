// Package protocol encodes and decodes the line frames shared by the relay server and its clients.
//
// A frame is a tag followed by zero or more fields, all separated by ':'.
// Every field is escaped so that ':', '%', '\r' and '\n' never appear raw inside it:
// a field can therefore hold any alias, filename or text without breaking the arity
// of the frame, and a frame always fits on a single line.
package protocol

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

const separator = ":"

var escaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"\n", "%0A",
	"\r", "%0D",
)

// Escape makes s safe to use as a single frame field.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape reverses Escape.
func Unescape(s string) (string, error) {
	res, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrMalformedFrame, err)
	}
	return res, nil
}

// Encode renders a frame as a single line, without the trailing newline.
func Encode(frame domain.Frame) (string, error) {
	switch f := frame.(type) {
	case domain.PublicMessage:
		return join(f.Tag(), f.Text), nil
	case domain.PrivateMessage:
		return join(f.Tag(), f.To, f.Text), nil
	case domain.FileTransfer:
		return join(f.Tag(), f.Peer, f.Filename, base64.StdEncoding.EncodeToString(f.Payload)), nil
	case domain.UserListSnapshot:
		fields := make([]string, 0, 2*len(f.Entries))
		for _, e := range f.Entries {
			fields = append(fields, e.Code, e.Alias)
		}
		return join(f.Tag(), fields...), nil
	case domain.SystemPrompt:
		return join(f.Tag(), f.Text), nil
	case domain.Welcome:
		return join(f.Tag(), f.Alias), nil
	case domain.Hello:
		return join(f.Tag(), f.Alias), nil
	case domain.Notice:
		return join(f.Tag(), f.Text), nil
	case domain.AliasTaken, domain.Leave:
		return string(f.Tag()), nil
	case nil:
		return "", fmt.Errorf("%w: nil frame", errors.ErrUnknownFrame)
	default:
		return "", fmt.Errorf("%w: %T", errors.ErrUnknownFrame, frame)
	}
}

// MustEncode is Encode for frames built in code, which are always encodable.
func MustEncode(frame domain.Frame) string {
	line, err := Encode(frame)
	if err != nil {
		panic(err)
	}
	return line
}

// Decode parses one line.
// It returns ErrUnknownFrame when the tag is not known and ErrMalformedFrame
// when the field count or a field content does not match the tag.
func Decode(line string) (domain.Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.EqualFold(strings.TrimSpace(line), string(domain.TagLeave)) {
		return domain.Leave{}, nil
	}

	tag, rest, hasFields := strings.Cut(line, separator)
	var raw []string
	if hasFields {
		raw = strings.Split(rest, separator)
	}
	fields := make([]string, len(raw))
	for i, r := range raw {
		f, err := Unescape(r)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}

	switch domain.Tag(tag) {
	case domain.TagPublic:
		if err := arity(tag, fields, 1); err != nil {
			return nil, err
		}
		return domain.PublicMessage{Text: fields[0]}, nil
	case domain.TagPrivate:
		if err := arity(tag, fields, 2); err != nil {
			return nil, err
		}
		return domain.PrivateMessage{To: fields[0], Text: fields[1]}, nil
	case domain.TagFile:
		if err := arity(tag, fields, 3); err != nil {
			return nil, err
		}
		payload, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: file payload: %v", errors.ErrMalformedFrame, err)
		}
		return domain.FileTransfer{Peer: fields[0], Filename: fields[1], Payload: payload}, nil
	case domain.TagUsers:
		if len(fields)%2 != 0 {
			return nil, fmt.Errorf("%w: %s expects pairs of fields, got %d", errors.ErrMalformedFrame, tag, len(fields))
		}
		entries := lo.Map(lo.Chunk(fields, 2), func(pair []string, _ int) domain.UserEntry {
			return domain.UserEntry{Code: pair[0], Alias: pair[1]}
		})
		return domain.UserListSnapshot{Entries: entries}, nil
	case domain.TagPrompt:
		if err := arity(tag, fields, 1); err != nil {
			return nil, err
		}
		return domain.SystemPrompt{Text: fields[0]}, nil
	case domain.TagWelcome:
		if err := arity(tag, fields, 1); err != nil {
			return nil, err
		}
		return domain.Welcome{Alias: fields[0]}, nil
	case domain.TagHello:
		if err := arity(tag, fields, 1); err != nil {
			return nil, err
		}
		return domain.Hello{Alias: fields[0]}, nil
	case domain.TagText:
		if err := arity(tag, fields, 1); err != nil {
			return nil, err
		}
		return domain.Notice{Text: fields[0]}, nil
	case domain.TagAliasTaken:
		if err := arity(tag, fields, 0); err != nil {
			return nil, err
		}
		return domain.AliasTaken{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownFrame, tag)
	}
}

// DecodeAlias reads the answer to the handshake prompt.
// A HELLO frame carries the alias in its field; any other line is taken literally.
func DecodeAlias(line string) string {
	if frame, err := Decode(line); err == nil {
		if hello, ok := frame.(domain.Hello); ok {
			return strings.TrimSpace(hello.Alias)
		}
	}
	return strings.TrimSpace(line)
}

func join(tag domain.Tag, fields ...string) string {
	var b strings.Builder
	b.WriteString(string(tag))
	for _, f := range fields {
		b.WriteString(separator)
		b.WriteString(Escape(f))
	}
	return b.String()
}

func arity(tag string, fields []string, want int) error {
	if len(fields) != want {
		return fmt.Errorf("%w: %s expects %d fields, got %d", errors.ErrMalformedFrame, tag, want, len(fields))
	}
	return nil
}
