package pathsec

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Device names Windows refuses as file names regardless of extension.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename turns a client-supplied upload name into a single path
// segment made only of [A-Za-z0-9_.-] that does not start with '.', '_' or
// '-'. Accented letters are folded to ASCII ("café.png" -> "cafe.png").
func SanitizeFilename(raw string) (string, error) {
	if raw == "" {
		return "", &PathSecurityError{Op: "sanitize", Path: raw, Wrapped: ErrEmptyFilename}
	}

	name := raw
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = norm.NFKD.String(name)

	var sb strings.Builder
	sb.Grow(len(name))
	pendingSpace := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case r > unicode.MaxASCII:
			continue
		}
		if pendingSpace {
			if sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSpace = false
		}
		if isSafeByte(byte(r)) {
			sb.WriteRune(r)
		}
	}

	name = strings.TrimLeft(sb.String(), "._-")
	name = strings.TrimRight(name, "._")

	if base, _, _ := strings.Cut(name, "."); reservedNames[strings.ToUpper(base)] {
		name = "_" + name
	}

	if !IsValidFilename(name) {
		return "", &PathSecurityError{Op: "sanitize", Path: raw, Wrapped: ErrInvalidFilename}
	}
	return name, nil
}

func isSafeByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_', b == '.', b == '-':
		return true
	}
	return false
}
