package stream

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder turns raw fragments into text. An incomplete multi-byte
// sequence at the end of a fragment is held back until the next one.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{t: unicode.UTF8.NewDecoder()}
}

func (d *textDecoder) decode(frag []byte, atEOF bool) (string, error) {
	src := append(d.pending, frag...)
	d.pending = nil

	// worst case every byte becomes a 3-byte replacement rune
	if need := len(src)*3 + utf8.UTFMax; cap(d.dst) < need {
		d.dst = make([]byte, need)
	}
	dst := d.dst[:cap(d.dst)]

	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		switch err {
		case nil:
			return string(out), nil
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return string(out), nil
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		default:
			return string(out), err
		}
	}
}

// flush completes decoding at end of stream; a dangling partial sequence
// becomes a replacement character.
func (d *textDecoder) flush() (string, error) {
	if len(d.pending) == 0 {
		return "", nil
	}
	return d.decode(nil, true)
}
