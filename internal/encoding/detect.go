// Package encoding normalizes uploaded text files to UTF-8.
package encoding

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

// Charset names reported by Decode.
const (
	UTF8        = "UTF-8"
	UTF16LE     = "UTF-16LE"
	UTF16BE     = "UTF-16BE"
	Windows1252 = "windows-1252"
	ISO88599    = "ISO-8859-9"
	ISO885915   = "ISO-8859-15"
)

const sniffLen = 4096

type bom struct {
	prefix  []byte
	charset string
	strip   bool
}

var boms = []bom{
	{prefix: []byte{0xEF, 0xBB, 0xBF}, charset: UTF8, strip: true},
	{prefix: []byte{0xFF, 0xFE}, charset: UTF16LE},
	{prefix: []byte{0xFE, 0xFF}, charset: UTF16BE},
}

var decoders = map[string]encoding.Encoding{
	UTF16LE:     unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	UTF16BE:     unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	Windows1252: charmap.Windows1252,
	ISO88599:    charmap.ISO8859_9,
	ISO885915:   charmap.ISO8859_15,
}

// Decode sniffs the leading bytes of r and returns a UTF-8 reader over the whole input
// together with the charset it settled on. A BOM wins over content heuristics; content
// that chardet cannot place is read as Windows-1252, the usual spreadsheet export.
func Decode(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, sniffLen)

	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, "", fmt.Errorf("sniffing encoding: %w", err)
	}

	charset := sniff(head)

	for _, b := range boms {
		if b.strip && bytes.HasPrefix(head, b.prefix) {
			_, _ = br.Discard(len(b.prefix))
		}
	}

	dec, ok := decoders[charset]
	if !ok {
		return br, charset, nil
	}

	return transform.NewReader(br, dec.NewDecoder()), charset, nil
}

func sniff(head []byte) string {
	for _, b := range boms {
		if bytes.HasPrefix(head, b.prefix) {
			return b.charset
		}
	}

	if utf8.Valid(head) {
		return UTF8
	}

	res, err := chardet.NewTextDetector().DetectBest(head)
	if err != nil {
		return Windows1252
	}

	switch res.Charset {
	case UTF8:
		return UTF8
	case "ISO-8859-1", Windows1252:
		return Windows1252
	case ISO88599, ISO885915:
		return res.Charset
	default:
		return Windows1252
	}
}
