package lake

import (
	"fmt"
	"strings"
)

// DefaultPartition names the directory for an empty partition value.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	switch c {
	case '"', '#', '%', '\'', '*', '/', ':', '=', '?', '\\', '{', '[', ']', '^':
		return true
	}
	return false
}

// EscapeValue percent-encodes the bytes that cannot appear in a Hive
// partition directory name. An empty value maps to DefaultPartition.
func EscapeValue(v string) string {
	if v == "" {
		return DefaultPartition
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if needsEscape(c) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// UnescapeValue reverses EscapeValue. Malformed escapes are kept literally.
func UnescapeValue(s string) string {
	if s == DefaultPartition {
		return ""
	}
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// PartitionPath renders "col1=v1/col2=v2" for cols and vals of equal length.
func PartitionPath(cols, vals []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + "=" + EscapeValue(vals[i])
	}
	return strings.Join(parts, "/")
}

// ParsePartitionPath extracts col=value pairs from the directory segments of
// rel (a key relative to the table root). Segments without "=" are ignored.
func ParsePartitionPath(rel string) map[string]string {
	out := map[string]string{}
	segs := strings.Split(rel, "/")
	for _, seg := range segs[:len(segs)-1] {
		col, val, ok := strings.Cut(seg, "=")
		if !ok || col == "" {
			continue
		}
		out[UnescapeValue(col)] = UnescapeValue(val)
	}
	return out
}
