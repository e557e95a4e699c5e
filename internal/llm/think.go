package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// segment is a run of text from a think-tagged content stream.
type segment struct {
	reasoning bool
	text      string
}

// thinkSplitter separates reasoning from answer text for models that
// inline reasoning in the content field between <think> and </think>.
// Tag text is discarded. A suffix that could be the start of the next
// tag is held until the following chunk decides it.
type thinkSplitter struct {
	buf     string
	inThink bool
}

func (t *thinkSplitter) reset() {
	t.buf = ""
	t.inThink = false
}

func (t *thinkSplitter) feed(s string) []segment {
	t.buf += s
	var out []segment
	for {
		tag := thinkOpen
		if t.inThink {
			tag = thinkClose
		}

		if i := strings.Index(t.buf, tag); i >= 0 {
			if i > 0 {
				out = append(out, segment{reasoning: t.inThink, text: t.buf[:i]})
			}
			t.buf = t.buf[i+len(tag):]
			t.inThink = !t.inThink
			continue
		}

		keep := partialTagSuffix(t.buf, tag)
		if emit := t.buf[:len(t.buf)-keep]; emit != "" {
			out = append(out, segment{reasoning: t.inThink, text: emit})
		}
		t.buf = t.buf[len(t.buf)-keep:]
		return out
	}
}

func (t *thinkSplitter) flush() []segment {
	if t.buf == "" {
		return nil
	}
	seg := segment{reasoning: t.inThink, text: t.buf}
	t.buf = ""
	return []segment{seg}
}

// partialTagSuffix returns the length of the longest suffix of s that is
// a proper prefix of tag.
func partialTagSuffix(s, tag string) int {
	for n := min(len(s), len(tag)-1); n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
