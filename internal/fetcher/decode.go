package fetcher

import (
	"bytes"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// legacyCharset is assumed for payloads that carry no BOM and are not valid
// UTF-8, which in practice means spreadsheet exports from Windows.
const legacyCharset = "windows-1252"

// Decode converts an upload payload to UTF-8. A non-empty charset names the
// source encoding explicitly (any WHATWG label). Otherwise a UTF-8 or UTF-16
// BOM is honored and stripped, and invalid UTF-8 is read as windows-1252.
func Decode(data []byte, charset string) ([]byte, error) {
	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "decode: unsupported charset %q", charset)
		}
		return transformAll(enc, data)
	}

	if hasBOM(data) {
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return nil, eris.Wrap(err, "decode: bom")
		}
		return out, nil
	}

	if utf8.Valid(data) {
		return data, nil
	}

	enc, err := htmlindex.Get(legacyCharset)
	if err != nil {
		return nil, eris.Wrap(err, "decode: legacy charset")
	}
	return transformAll(enc, data)
}

func transformAll(enc encoding.Encoding, data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, eris.Wrap(err, "decode: transform")
	}
	return out, nil
}

func hasBOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(data, []byte{0xFE, 0xFF}) ||
		bytes.HasPrefix(data, []byte{0xFF, 0xFE})
}
