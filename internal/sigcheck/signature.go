// Package sigcheck authenticates uploaded bytes against known file-type
// signatures. Client-supplied names and MIME types are treated as claims;
// only the bytes themselves are trusted.
package sigcheck

import "bytes"

// PrefixLen is how many leading bytes the checks need. Buffers shorter
// than this never match anything.
const PrefixLen = 16

// signature is a required byte pattern at a fixed offset from the start
// of the file.
type signature struct {
	offset int
	magic  []byte
}

func (s signature) matches(prefix []byte) bool {
	end := s.offset + len(s.magic)
	if len(prefix) < end {
		return false
	}
	return bytes.Equal(prefix[s.offset:end], s.magic)
}

// allowedSignatures maps each accepted MIME type to the signatures that
// authenticate it. A file must match at least one signature registered
// for its *declared* type; matching some other type's signature still
// means the declaration was forged.
var allowedSignatures = map[string][]signature{
	"image/jpeg": {
		{0, []byte{0xFF, 0xD8, 0xFF}},
	},
	"image/png": {
		{0, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	},
	"image/webp": {
		// RIFF container; bytes 4-7 are the chunk size, then "WEBP"
		{0, []byte("RIFF")},
	},
	"video/mp4": {
		// ISO BMFF: 4-byte box size, then "ftyp"
		{4, []byte("ftyp")},
	},
	"video/webm": {
		// EBML header
		{0, []byte{0x1A, 0x45, 0xDF, 0xA3}},
	},
}

// AllowedType reports whether the MIME type has registered signatures.
func AllowedType(mime string) bool {
	_, ok := allowedSignatures[mime]
	return ok
}

// MatchesDeclared reports whether the leading bytes authenticate the
// declared MIME type. Unknown types never match.
func MatchesDeclared(prefix []byte, declaredMime string) bool {
	sigs, ok := allowedSignatures[declaredMime]
	if !ok {
		return false
	}
	for _, sig := range sigs {
		if sig.matches(prefix) {
			return true
		}
	}
	return false
}

// dangerous is a deny-listed signature. Matching one rejects the file
// unconditionally, whatever type was declared.
type dangerous struct {
	name string
	sig  signature
}

var dangerousSignatures = []dangerous{
	{"windows executable", signature{0, []byte{0x4D, 0x5A}}},
	{"elf executable", signature{0, []byte{0x7F, 0x45, 0x4C, 0x46}}},
	{"mach-o executable", signature{0, []byte{0xFE, 0xED, 0xFA, 0xCE}}},
	{"mach-o executable", signature{0, []byte{0xFE, 0xED, 0xFA, 0xCF}}},
	{"mach-o executable", signature{0, []byte{0xCF, 0xFA, 0xED, 0xFE}}},
	{"zip archive", signature{0, []byte{0x50, 0x4B, 0x03, 0x04}}},
	{"zip archive", signature{0, []byte{0x50, 0x4B, 0x05, 0x06}}},
	{"zip archive", signature{0, []byte{0x50, 0x4B, 0x07, 0x08}}},
	{"rar archive", signature{0, []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07}}},
	{"7z archive", signature{0, []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}}},
	{"gzip archive", signature{0, []byte{0x1F, 0x8B}}},
	{"pdf document", signature{0, []byte("%PDF")}},
	{"ole compound document", signature{0, []byte{0xD0, 0xCF, 0x11, 0xE0}}},
	{"script shebang", signature{0, []byte("#!")}},
}

// DangerousSignature checks the prefix against the deny list. On a match
// it returns the human-readable name of the matched signature.
func DangerousSignature(prefix []byte) (string, bool) {
	for _, d := range dangerousSignatures {
		if d.sig.matches(prefix) {
			return d.name, true
		}
	}
	return "", false
}
