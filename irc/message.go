// Package irc parses IRC lines, including IRCv3 message tags as sent by
// Twitch chat, using pooled scratch memory.
package irc

import (
	"bytes"
	"fmt"

	"github.com/alesr/bucketpool/buffers"
	"github.com/containerd/errdefs"
)

var (
	// ErrEmptyLine is returned for a line with nothing but whitespace.
	ErrEmptyLine = fmt.Errorf("irc: empty line: %w", errdefs.ErrInvalidArgument)

	// ErrMissingCommand is returned for a line without a command.
	ErrMissingCommand = fmt.Errorf("irc: missing command: %w", errdefs.ErrInvalidArgument)
)

// Message is one parsed IRC line.
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string // the trailing parameter, if any, is last
}

// Trailing returns the last parameter, or "" if there is none.
func (m Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Nick returns the nickname part of the prefix.
func (m Message) Nick() string {
	if i := indexAny(m.Prefix, "!@"); i >= 0 {
		return m.Prefix[:i]
	}
	return m.Prefix
}

// Parse parses a single line of the form
//
//	[@tags ][:prefix ]COMMAND[ params][ :trailing]
//
// A trailing CR LF is ignored. The returned message does not reference line.
func Parse(line []byte) (Message, error) {
	line = bytes.TrimRight(line, "\r\n")
	line = bytes.TrimLeft(line, " ")
	if len(line) == 0 {
		return Message{}, ErrEmptyLine
	}

	var msg Message
	if line[0] == '@' {
		var raw []byte
		raw, line = cutWord(line[1:])
		msg.Tags = parseTags(raw)
	}
	if len(line) > 0 && line[0] == ':' {
		var prefix []byte
		prefix, line = cutWord(line[1:])
		msg.Prefix = string(prefix)
	}

	command, line := cutWord(line)
	if len(command) == 0 {
		return Message{}, ErrMissingCommand
	}
	msg.Command = string(command)

	for len(line) > 0 {
		if line[0] == ':' {
			msg.Params = append(msg.Params, string(line[1:]))
			break
		}
		var param []byte
		param, line = cutWord(line)
		msg.Params = append(msg.Params, string(param))
	}
	return msg, nil
}

// cutWord splits s at the first space and drops the spaces that follow.
func cutWord(s []byte) (word, rest []byte) {
	word, rest, _ = bytes.Cut(s, []byte{' '})
	return word, bytes.TrimLeft(rest, " ")
}

func parseTags(raw []byte) map[string]string {
	tags := make(map[string]string, bytes.Count(raw, []byte{';'})+1)
	for len(raw) > 0 {
		var tag []byte
		tag, raw, _ = bytes.Cut(raw, []byte{';'})
		key, value, _ := bytes.Cut(tag, []byte{'='})
		if len(key) == 0 {
			continue
		}
		tags[string(key)] = unescapeTag(value)
	}
	return tags
}

// unescapeTag decodes an IRCv3 tag value. A lone trailing backslash is
// dropped, an unknown escape yields the escaped character.
func unescapeTag(v []byte) string {
	if bytes.IndexByte(v, '\\') < 0 {
		return string(v)
	}

	sb := buffers.NewStringBuilder(nil, len(v))
	defer sb.Close()

	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i == len(v) {
			break
		}
		switch v[i] {
		case ':':
			c = ';'
		case 's':
			c = ' '
		case 'r':
			c = '\r'
		case 'n':
			c = '\n'
		default:
			c = v[i]
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func indexAny(s, chars string) int {
	for i := range len(s) {
		for j := range len(chars) {
			if s[i] == chars[j] {
				return i
			}
		}
	}
	return -1
}
