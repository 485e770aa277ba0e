package text

import "strings"

// minFragmentRunes avoids emitting fragments too short to synthesize well,
// such as a lone "1." from a numbered list.
const minFragmentRunes = 4

// Assembler groups streamed text deltas into sentence-sized fragments.
// Deltas arrive in arbitrary slices; the assembler buffers them and emits a
// fragment each time a sentence terminator is seen. Not safe for concurrent
// use; a single producer goroutine owns it.
type Assembler struct {
	emit func(string)
	buf  []rune
}

// NewAssembler creates an assembler that passes each complete fragment to
// emit.
func NewAssembler(emit func(string)) *Assembler {
	return &Assembler{emit: emit}
}

// Write appends a delta and emits any complete sentences it closes.
func (a *Assembler) Write(delta string) {
	for _, r := range delta {
		a.buf = append(a.buf, r)
		if isTerminator(r) && len(a.buf) >= minFragmentRunes {
			a.flush()
		}
	}
}

// Flush emits whatever text remains buffered, terminator or not.
func (a *Assembler) Flush() {
	a.flush()
}

func (a *Assembler) flush() {
	fragment := strings.TrimSpace(string(a.buf))
	a.buf = a.buf[:0]
	if fragment == "" {
		return
	}
	a.emit(fragment)
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '\n',
		'。', '！', '？', '；', '…':
		return true
	}
	return false
}
