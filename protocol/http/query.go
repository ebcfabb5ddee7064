package http

import "fmt"

// QueryVar decodes one percent-encoded query parameter value from raw
// (the RawQuery() of a live Message) by name. It returns an error if the
// decoded value would exceed MaxQueryScratch bytes (spec.md §4.2).
func QueryVar(rawQuery, name string) (string, error) {
	for _, pair := range splitQueryPairs(rawQuery) {
		k, v := splitQueryPair(pair)
		if k != name {
			continue
		}
		decoded, err := decodeQueryValue(v)
		if err != nil {
			return "", err
		}
		return decoded, nil
	}
	return "", nil
}

func splitQueryPairs(raw string) []string {
	var out []string
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == '&' {
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	out = append(out, raw[start:])
	return out
}

func splitQueryPair(pair string) (key, value string) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			return pair[:i], pair[i+1:]
		}
	}
	return pair, ""
}

func decodeQueryValue(v string) (string, error) {
	if len(v) > MaxQueryScratch {
		return "", fmt.Errorf("http: query value exceeds %d bytes", MaxQueryScratch)
	}
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '+':
			out = append(out, ' ')
		case '%':
			if i+2 >= len(v) {
				out = append(out, v[i])
				continue
			}
			hi, ok1 := hexVal(v[i+1])
			lo, ok2 := hexVal(v[i+2])
			if !ok1 || !ok2 {
				out = append(out, v[i])
				continue
			}
			out = append(out, byte(hi<<4|lo))
			i += 2
		default:
			out = append(out, v[i])
		}
		if len(out) > MaxQueryScratch {
			return "", fmt.Errorf("http: query value exceeds %d bytes", MaxQueryScratch)
		}
	}
	return string(out), nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0'), true
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10, true
	case 'A' <= c && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
