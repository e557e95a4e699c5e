package llm

import (
	"strings"
	"unicode"
)

// maxSpeakerTag bounds how much leading text is held back while waiting
// for a speaker tag to close.
const maxSpeakerTag = 128

// prefixStripper removes speaker-tag artifacts such as "<Lumen/>" that
// some providers emit ahead of the answer. Leading text starting with
// "<" is held until "/>" closes the tag; the tag is discarded. The first
// text that does not start with "<" ends stripping for the turn. Output
// does not depend on how the input was chunked.
type prefixStripper struct {
	buf  string
	done bool
}

func (p *prefixStripper) reset() {
	p.buf = ""
	p.done = false
}

// feed returns the text that is safe to emit.
func (p *prefixStripper) feed(s string) string {
	if p.done {
		return s
	}
	p.buf += s
	for {
		pending := strings.TrimLeftFunc(p.buf, unicode.IsSpace)
		if pending == "" {
			p.buf = ""
			return ""
		}
		if pending[0] != '<' {
			return p.release(pending)
		}

		end := strings.Index(pending, "/>")
		gt := strings.IndexByte(pending, '>')
		switch {
		case end >= 0 && gt == end+1:
			// Self-closing tag: drop it and look at what follows.
			p.buf = pending[end+2:]
		case gt >= 0 || len(pending) > maxSpeakerTag:
			// Markup or a stray "<", not a speaker tag.
			return p.release(pending)
		default:
			p.buf = pending
			return ""
		}
	}
}

// flush releases anything still held at end of stream.
func (p *prefixStripper) flush() string {
	if p.done {
		return ""
	}
	return p.release(strings.TrimLeftFunc(p.buf, unicode.IsSpace))
}

func (p *prefixStripper) release(s string) string {
	p.buf = ""
	p.done = true
	return s
}
