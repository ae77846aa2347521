package field

import (
	"fmt"

	"golang.org/x/text/encoding/htmlindex"
)

// ConvertCharset re-encodes raw from a declared MySQL collation's charset
// into UTF-8, using the htmlindex encoding lookup; a converter error is
// returned to the caller. Decode does not call it. collationName is the table schema's declared
// collation for the column, e.g.
// "utf8mb4_general_ci" or "latin1_swedish_ci"; ConvertCharset looks up the
// charset portion before the first underscore.
func ConvertCharset(raw []byte, collationName string) ([]byte, error) {
	charset := charsetFromCollation(collationName)
	if charset == "" || charset == "utf8" || charset == "utf8mb4" || charset == "binary" {
		return raw, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("field: unknown charset %q for collation %q: %w", charset, collationName, err)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("field: charset conversion failed for collation %q: %w", collationName, err)
	}
	return out, nil
}

func charsetFromCollation(collationName string) string {
	for i, r := range collationName {
		if r == '_' {
			return collationName[:i]
		}
	}
	return collationName
}
