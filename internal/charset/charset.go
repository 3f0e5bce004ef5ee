// Package charset normalizes gateway settlement exports to UTF-8. The
// gateways in the field deliver a mix of UTF-8, UTF-16 and legacy Latin
// encodings, usually without declaring which.
package charset

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sniffLen = 4096

// NewReader wraps r so that its content reads as UTF-8.
//
// A byte-order mark wins outright; otherwise content that already validates
// as UTF-8 passes through, then chardet gets a shot, and anything still
// unidentified is assumed Windows-1252 (the dominant legacy encoding in
// gateway exports).
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("sniffing charset: %w", err)
	}

	if bytes.HasPrefix(head, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
		return br, nil
	}

	if bytes.HasPrefix(head, []byte{0xFF, 0xFE}) {
		return decode(br, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))
	}

	if bytes.HasPrefix(head, []byte{0xFE, 0xFF}) {
		return decode(br, unicode.UTF16(unicode.BigEndian, unicode.UseBOM))
	}

	if utf8.Valid(head) {
		return br, nil
	}

	if result, err := chardet.NewTextDetector().DetectBest(head); err == nil {
		switch result.Charset {
		case "UTF-8":
			return br, nil
		case "ISO-8859-1", "windows-1252":
			return decode(br, charmap.Windows1252)
		case "ISO-8859-15":
			return decode(br, charmap.ISO8859_15)
		case "ISO-8859-9":
			return decode(br, charmap.ISO8859_9)
		}
	}

	return decode(br, charmap.Windows1252)
}

func decode(r io.Reader, enc encoding.Encoding) (io.Reader, error) {
	return transform.NewReader(r, enc.NewDecoder()), nil
}
