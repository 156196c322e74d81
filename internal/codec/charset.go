package codec

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// resolveEncoding maps a bank config encoding name ("UTF-8", "EUC-KR",
// "Shift_JIS", "CP949", ...) to a charmap. Names are resolved through the
// IANA/WHATWG index so spelling variants a bank's spec sheet might use
// ("euc-kr", "EUC_KR") all land on the same codec.
func resolveEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	normalized := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	if normalized == "cp949" || normalized == "ms949" {
		normalized = "euc-kr" // x/text's EUC-KR tables are the CP949 superset
	}
	enc, err := htmlindex.Get(normalized)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	return enc, nil
}

// transcodeField converts one field value to the wire charset. Fixed
// width layouts count wire bytes, so padding and truncation must happen
// in that domain. When truncate is set the value is cut to at most max
// wire bytes without splitting a multibyte character; otherwise
// overflow is left for the layout to reject.
func transcodeField(enc encoding.Encoding, value string, max int, truncate bool) (string, error) {
	encoder := enc.NewEncoder()
	out, err := encoder.Bytes([]byte(value))
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", value, err)
	}
	if !truncate || len(out) <= max {
		return string(out), nil
	}
	fitted := make([]byte, 0, max)
	for _, r := range value {
		rb, err := encoder.Bytes([]byte(string(r)))
		if err != nil {
			return "", fmt.Errorf("encode %q: %w", value, err)
		}
		if len(fitted)+len(rb) > max {
			break
		}
		fitted = append(fitted, rb...)
	}
	return string(fitted), nil
}

// encodeCharset converts UTF-8 bytes to the bank's wire charset.
func encodeCharset(name string, data []byte) ([]byte, error) {
	enc, err := resolveEncoding(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewEncoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("encoding to %s: %w", name, err)
	}
	return out, nil
}

// decodeCharset converts bank wire bytes to UTF-8.
func decodeCharset(name string, data []byte) ([]byte, error) {
	enc, err := resolveEncoding(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding from %s: %w", name, err)
	}
	return out, nil
}
