package util

// CopyBytes returns an independent copy of b.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// WipeBytes zeroes b in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
