package security

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/audit"
)

type memRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memRecorder) Record(r audit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *memRecorder) all() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.records...)
}

func testConfig() Config {
	return Config{
		AllowedExtensions: []string{".csv", ".pdf", ".xlsx"},
		MaxSizeBytes:      1 << 20,
		PIIDetection:      true,
	}
}

func writeUpload(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestValidateAcceptsCSV(t *testing.T) {
	rec := &memRecorder{}
	v := NewValidator(testConfig(), rec, nil)
	path := writeUpload(t, "grades.csv", []byte("student,score\ns1,8.5\ns2,7.0\n"))

	res := v.Validate(context.Background(), "req-1", path)

	assert.Equal(t, analysis.Accepted, res.Outcome)
	assert.Equal(t, "text/csv", res.MIME)
	assert.Len(t, res.SHA256, 64)
	assert.Empty(t, res.PIIFlags)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.KindFileValidated, records[0].Kind)
	assert.True(t, records[0].Success)
	assert.Equal(t, "req-1", records[0].RequestID)
}

func TestValidateRejectsHTMLSmuggledAsCSV(t *testing.T) {
	rec := &memRecorder{}
	v := NewValidator(testConfig(), rec, nil)
	path := writeUpload(t, "data.csv", []byte("<!DOCTYPE html><html><body>not data</body></html>"))

	res := v.Validate(context.Background(), "req-2", path)

	assert.Equal(t, analysis.Rejected, res.Outcome)
	assert.Equal(t, analysis.ReasonTypeMismatch, res.Reason)
	// Rejected files stay correlatable in the audit trail.
	assert.Len(t, res.SHA256, 64)

	records := rec.all()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestValidateRejectsBinarySmuggledAsCSV(t *testing.T) {
	v := NewValidator(testConfig(), nil, nil)
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d}
	path := writeUpload(t, "image.csv", png)

	res := v.Validate(context.Background(), "req-3", path)
	assert.Equal(t, analysis.Rejected, res.Outcome)
	assert.Equal(t, analysis.ReasonTypeMismatch, res.Reason)
}

func TestValidateAcceptsPDFMagic(t *testing.T) {
	v := NewValidator(testConfig(), nil, nil)
	path := writeUpload(t, "paper.pdf", []byte("%PDF-1.4\n1 0 obj\nendobj\n"))

	res := v.Validate(context.Background(), "req-4", path)
	assert.Equal(t, analysis.Accepted, res.Outcome)
	assert.Equal(t, "application/pdf", res.MIME)
}

func TestValidateRejectsDisallowedExtension(t *testing.T) {
	v := NewValidator(testConfig(), nil, nil)
	path := writeUpload(t, "tool.exe", []byte("MZ binary"))

	res := v.Validate(context.Background(), "req-5", path)
	assert.Equal(t, analysis.Rejected, res.Outcome)
	assert.Equal(t, analysis.ReasonTypeMismatch, res.Reason)
	assert.Len(t, res.SHA256, 64)
}

func TestValidateRejectsOversizedFile(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSizeBytes = 16
	v := NewValidator(cfg, nil, nil)
	path := writeUpload(t, "big.csv", []byte("a,b\n"+strings.Repeat("1,2\n", 32)))

	res := v.Validate(context.Background(), "req-6", path)
	assert.Equal(t, analysis.Rejected, res.Outcome)
	assert.Equal(t, analysis.ReasonTooLarge, res.Reason)
}

func TestValidateUnreadableFile(t *testing.T) {
	v := NewValidator(testConfig(), nil, nil)

	res := v.Validate(context.Background(), "req-7", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Equal(t, analysis.Rejected, res.Outcome)
	assert.Equal(t, analysis.ReasonUnreadable, res.Reason)
	assert.Empty(t, res.SHA256)
}

func TestValidateFlagsPIIWithoutRejecting(t *testing.T) {
	v := NewValidator(testConfig(), nil, nil)
	content := "student,email,cpf\ns1,ana@example.com,123.456.789-00\n"
	path := writeUpload(t, "students.csv", []byte(content))

	res := v.Validate(context.Background(), "req-8", path)
	assert.Equal(t, analysis.Accepted, res.Outcome)
	assert.Equal(t, []string{"document_id", "email"}, res.PIIFlags)
}

func TestValidatePIIEscalation(t *testing.T) {
	cfg := testConfig()
	cfg.PIIReject = true
	v := NewValidator(cfg, nil, nil)
	path := writeUpload(t, "students.csv", []byte("student,email\ns1,ana@example.com\n"))

	res := v.Validate(context.Background(), "req-9", path)
	assert.Equal(t, analysis.Rejected, res.Outcome)
	assert.Equal(t, analysis.ReasonPIIRejected, res.Reason)
}

func TestValidatePIIDetectionDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PIIDetection = false
	v := NewValidator(cfg, nil, nil)
	path := writeUpload(t, "students.csv", []byte("student,email\ns1,ana@example.com\n"))

	res := v.Validate(context.Background(), "req-10", path)
	assert.Equal(t, analysis.Accepted, res.Outcome)
	assert.Empty(t, res.PIIFlags)
}
