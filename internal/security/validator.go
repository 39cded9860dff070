// Package security inspects uploaded files before anything else in the
// pipeline touches them.
package security

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/audit"
)

const (
	headerBytes  = 8192       // enough for zip-based office formats
	piiScanBytes = 256 * 1024 // PII scan window for text content
)

// PII patterns over extractable text. Presence is a flag, not a rejection,
// unless escalation is configured.
var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"document_id": regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`),
	"phone":       regexp.MustCompile(`\(\d{2}\)\s?\d{4,5}-\d{4}`),
	"enrollment":  regexp.MustCompile(`(?i)(matr[íi]cula|enrollment)\s*:?\s*[\w\d]+`),
}

type Config struct {
	AllowedExtensions []string
	MaxSizeBytes      int64
	PIIDetection      bool
	PIIReject         bool
}

type Validator struct {
	cfg     Config
	allowed map[string]bool
	rec     audit.Recorder
	log     *zap.Logger
}

func NewValidator(cfg Config, rec audit.Recorder, log *zap.Logger) *Validator {
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Validator{cfg: cfg, allowed: allowed, rec: rec, log: log}
}

// Validate runs the check sequence against one file, short-circuiting on
// the first hard failure: extension allow-list, magic-number MIME match,
// size cap, PII scan. The SHA-256 digest is computed unconditionally so
// rejected files remain correlatable in the audit trail. Exactly one audit
// record is emitted per call, success or failure.
func (v *Validator) Validate(ctx context.Context, requestID analysis.RequestID, path string) analysis.ValidationResult {
	res := v.validate(path)
	v.rec.Record(audit.Record{
		Time:      time.Now().UTC(),
		RequestID: string(requestID),
		Kind:      audit.KindFileValidated,
		Component: "security.validator",
		Success:   res.Outcome == analysis.Accepted,
		Payload: map[string]any{
			"file":      filepath.Base(path),
			"outcome":   res.Outcome,
			"reason":    res.Reason,
			"sha256":    res.SHA256,
			"mime":      res.MIME,
			"size":      res.Size,
			"pii_flags": res.PIIFlags,
		},
	})
	return res
}

func (v *Validator) validate(path string) analysis.ValidationResult {
	res := analysis.ValidationResult{Path: path, Outcome: analysis.Rejected}

	f, err := os.Open(path)
	if err != nil {
		res.Reason = analysis.ReasonUnreadable
		res.Detail = "file cannot be opened"
		return res
	}
	defer f.Close()

	// Digest first: audit correlation must work even for rejected files.
	digest, size, err := hashAndSize(f)
	if err != nil {
		res.Reason = analysis.ReasonUnreadable
		res.Detail = "file cannot be read"
		return res
	}
	res.SHA256 = digest
	res.Size = size

	ext := strings.ToLower(filepath.Ext(path))
	if !v.allowed[ext] {
		res.Reason = analysis.ReasonTypeMismatch
		res.Detail = fmt.Sprintf("extension %q is not in the allow-list", ext)
		return res
	}

	head, err := readHead(f, headerBytes)
	if err != nil {
		res.Reason = analysis.ReasonUnreadable
		res.Detail = "file header cannot be read"
		return res
	}

	mime, ok := matchMIME(ext, head)
	res.MIME = mime
	if !ok {
		res.Reason = analysis.ReasonTypeMismatch
		res.Detail = fmt.Sprintf("content does not match declared extension %q", ext)
		return res
	}

	if size > v.cfg.MaxSizeBytes {
		res.Reason = analysis.ReasonTooLarge
		res.Detail = fmt.Sprintf("file is %d bytes, limit is %d", size, v.cfg.MaxSizeBytes)
		return res
	}

	if v.cfg.PIIDetection {
		res.PIIFlags = scanPII(f, ext)
		if v.cfg.PIIReject && len(res.PIIFlags) > 0 {
			res.Reason = analysis.ReasonPIIRejected
			res.Detail = fmt.Sprintf("PII patterns present: %s", strings.Join(res.PIIFlags, ", "))
			return res
		}
	}

	res.Outcome = analysis.Accepted
	res.Reason = ""
	return res
}

// matchMIME verifies that the magic-number-derived type matches what the
// declared extension promises. Extension spoofing is a rejection, not a
// warning.
func matchMIME(ext string, head []byte) (string, bool) {
	kind, _ := filetype.Match(head)

	switch ext {
	case ".csv":
		// CSV has no magic number. It must not carry a binary signature
		// and must not be markup smuggled under a data extension.
		if kind != filetype.Unknown {
			return kind.MIME.Value, false
		}
		if looksLikeHTML(head) {
			return "text/html", false
		}
		return "text/csv", true
	case ".pdf":
		return kind.MIME.Value, kind.Extension == "pdf"
	case ".xlsx":
		// Office formats are zip containers; shallow headers may only
		// resolve to the container type.
		return kind.MIME.Value, kind.Extension == "xlsx" || kind.Extension == "zip"
	case ".docx":
		return kind.MIME.Value, kind.Extension == "docx" || kind.Extension == "zip"
	default:
		return kind.MIME.Value, false
	}
}

func looksLikeHTML(head []byte) bool {
	s := strings.ToLower(string(bytes.TrimSpace(head)))
	return strings.HasPrefix(s, "<!doctype html") ||
		strings.HasPrefix(s, "<html") ||
		strings.Contains(s, "<html>") ||
		strings.Contains(s, "<head>") ||
		strings.Contains(s, "<body")
}

// scanPII runs the pattern set over the leading window of the file. For
// binary formats the raw bytes are scanned; embedded text such as PDF
// strings still surfaces keyword-style identifiers.
func scanPII(f *os.File, ext string) []string {
	window, err := readHead(f, piiScanBytes)
	if err != nil {
		return nil
	}
	content := string(window)
	var flags []string
	for name, re := range piiPatterns {
		if re.MatchString(content) {
			flags = append(flags, name)
		}
	}
	sortFlags(flags)
	return flags
}

// sortFlags keeps flag order stable for tests and audit payloads.
func sortFlags(flags []string) {
	for i := 1; i < len(flags); i++ {
		for j := i; j > 0 && flags[j] < flags[j-1]; j-- {
			flags[j], flags[j-1] = flags[j-1], flags[j]
		}
	}
}

func hashAndSize(f *os.File) (string, int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func readHead(f *os.File, limit int) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
