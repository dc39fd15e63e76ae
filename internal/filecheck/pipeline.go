// Package filecheck decides, per uploaded file, whether the bytes are
// what the client claims they are. Declared MIME type, extension and
// filename are all treated as hostile input; only checks over the buffer
// itself can accept a file.
package filecheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"wuwareport/internal/sigcheck"

	"github.com/google/uuid"
	"golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// ErrFileRejected marks a batch that failed validation. The wrapping
// *BatchError carries the per-file verdicts.
var ErrFileRejected = errors.New("file rejected")

// MaxNameRunes is the longest accepted original filename.
const MaxNameRunes = 255

// Upload is a transient uploaded file. It is consumed by the pipeline
// and either promoted to a stored artifact or discarded.
type Upload struct {
	OriginalName string
	DeclaredMime string
	Size         int64
	Data         []byte
}

// Result is the verdict for one file.
type Result struct {
	OriginalName string
	DeclaredMime string
	Size         int64
	Accepted     bool
	Reasons      []string

	// StoredName is the generated storage name, unrelated to the
	// original. Only set on acceptance.
	StoredName string
}

// BatchError reports a rejected batch with every file's verdict.
type BatchError struct {
	Results []Result
}

func (e *BatchError) Error() string {
	var rejected []string
	for _, r := range e.Results {
		if !r.Accepted {
			rejected = append(rejected, r.OriginalName)
		}
	}
	return fmt.Sprintf("%d file(s) rejected: %s", len(rejected), strings.Join(rejected, ", "))
}

func (e *BatchError) Unwrap() error { return ErrFileRejected }

// extensions allowed per declared MIME type.
var allowedExtensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
	"video/mp4":  {".mp4"},
	"video/webm": {".webm"},
}

// Pipeline validates uploads against the signature registry, the content
// scanners and the metadata rules.
type Pipeline struct {
	maxBytes int64
}

// New returns a pipeline with the given per-file size ceiling.
func New(maxBytes int64) *Pipeline {
	return &Pipeline{maxBytes: maxBytes}
}

// Check runs every validation step over a single upload and collects all
// failure reasons rather than stopping at the first.
func (p *Pipeline) Check(ctx context.Context, up *Upload) Result {
	res := Result{
		OriginalName: up.OriginalName,
		DeclaredMime: up.DeclaredMime,
		Size:         up.Size,
	}

	reject := func(format string, args ...any) {
		res.Reasons = append(res.Reasons, fmt.Sprintf(format, args...))
	}

	// Step 1: metadata gates. These use only client claims, so passing
	// them proves nothing; failing them is still an immediate reject.
	exts, typeAllowed := allowedExtensions[up.DeclaredMime]
	if !typeAllowed {
		reject("type %q is not accepted", up.DeclaredMime)
	}
	if up.Size > p.maxBytes {
		reject("file exceeds the %d byte limit", p.maxBytes)
	}
	if int64(len(up.Data)) > p.maxBytes {
		reject("file content exceeds the %d byte limit", p.maxBytes)
	}
	if err := checkName(up.OriginalName); err != nil {
		reject("%v", err)
	}
	ext := strings.ToLower(filepath.Ext(up.OriginalName))
	if typeAllowed && !contains(exts, ext) {
		reject("extension %q does not match type %q", ext, up.DeclaredMime)
	}

	// Step 2: authenticate the content against the declared type.
	prefix := up.Data
	if len(prefix) > sigcheck.PrefixLen {
		prefix = prefix[:sigcheck.PrefixLen]
	}
	if typeAllowed && !sigcheck.MatchesDeclared(prefix, up.DeclaredMime) {
		reject("content signature does not match declared type %q", up.DeclaredMime)
	}

	// Step 3: deny list beats everything, including a valid declared
	// match (a polyglot prefix is still a polyglot).
	if name, bad := sigcheck.DangerousSignature(prefix); bad {
		reject("dangerous content signature: %s", name)
	}

	// Step 4: images must not carry executable markup in metadata.
	if strings.HasPrefix(up.DeclaredMime, "image/") {
		for _, marker := range sigcheck.ScanMarkup(up.Data) {
			reject("embedded script marker %q", marker)
		}
		if len(res.Reasons) == 0 {
			if err := decodeImage(up.DeclaredMime, up.Data); err != nil {
				reject("content does not decode as %s", up.DeclaredMime)
			}
		}
	}

	// Step 5: shell markers are rejected in every type.
	for _, marker := range sigcheck.ScanShell(up.Data) {
		reject("suspicious content pattern %q", marker)
	}

	if len(res.Reasons) > 0 {
		return res
	}

	res.Accepted = true
	res.StoredName = uuid.NewString() + ext
	return res
}

// CheckBatch validates every file of a submission in parallel. The batch
// is all-or-nothing: one rejected file fails the whole submission and
// the returned *BatchError names each offender.
func (p *Pipeline) CheckBatch(ctx context.Context, uploads []*Upload) ([]Result, error) {
	results := make([]Result, len(uploads))

	g, ctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = p.Check(ctx, up)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.Accepted {
			return results, &BatchError{Results: results}
		}
	}
	return results, nil
}

func checkName(name string) error {
	if name == "" {
		return errors.New("filename is empty")
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		return fmt.Errorf("filename exceeds %d characters", MaxNameRunes)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errors.New("filename contains control characters")
		}
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "\x00") {
		return errors.New("filename contains path separators")
	}
	return nil
}

func decodeImage(mime string, data []byte) error {
	switch mime {
	case "image/jpeg":
		_, err := jpeg.DecodeConfig(bytes.NewReader(data))
		return err
	case "image/png":
		_, err := png.DecodeConfig(bytes.NewReader(data))
		return err
	case "image/webp":
		_, err := webp.DecodeConfig(bytes.NewReader(data))
		return err
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
