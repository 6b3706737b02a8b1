package core

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// ColorClass returns one of color-1 .. color-6 for handle. The result is
// stable for a given handle.
func ColorClass(handle string) string {
	var h int64
	for _, c := range utf16.Encode([]rune(handle)) {
		h = int64(c) + (int64(int32(h)<<5) - h)
	}
	if h < 0 {
		h = -h
	}
	return fmt.Sprintf("color-%d", h%6+1)
}

// Initials returns up to two upper-case letters for an avatar: the first
// letter of each part of the handle split on '_', '-' and '.'.
func Initials(handle string) string {
	parts := strings.FieldsFunc(handle, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteRune([]rune(p)[0])
	}
	initials := []rune(strings.ToUpper(sb.String()))
	if len(initials) == 0 {
		initials = []rune(strings.ToUpper(handle))
	}
	if len(initials) > 2 {
		initials = initials[:2]
	}
	return string(initials)
}
