package crypto

import "encoding/base64"

// EncodeB64 encodes data using the standard base64 alphabet with padding.
func EncodeB64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeB64 decodes s using the standard base64 alphabet, rejecting
// non-strict padding.
func DecodeB64(s string) ([]byte, error) {
	return base64.StdEncoding.Strict().DecodeString(s)
}
