package scanner

// ScanStringField extracts the raw value of a JSON string field without
// unmarshalling the whole payload.
func ScanStringField(payload []byte, key []byte) ([]byte, bool) {
	idx := IndexOf(payload, key)
	if idx < 0 {
		return nil, false
	}
	i := idx + len(key)
	for i < len(payload) && payload[i] != ':' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	i++
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || payload[i] != '"' {
		return nil, false
	}
	i++
	start := i
	for i < len(payload) && payload[i] != '"' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	return payload[start:i], true
}

// HasField reports whether the payload carries the given JSON key.
func HasField(payload []byte, key []byte) bool {
	return IndexOf(payload, key) >= 0
}

func IndexOf(payload []byte, key []byte) int {
	if len(key) == 0 || len(payload) < len(key) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(key); i++ {
		for j := 0; j < len(key); j++ {
			if payload[i+j] != key[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func IsSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// TrimSpace returns payload without leading and trailing JSON whitespace.
func TrimSpace(payload []byte) []byte {
	i := 0
	j := len(payload)
	for i < j && IsSpace(payload[i]) {
		i++
	}
	for j > i && IsSpace(payload[j-1]) {
		j--
	}
	return payload[i:j]
}
