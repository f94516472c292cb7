package utils

// MaskSecret keeps the first four characters of a token, enough to tell tokens apart in logs
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}
