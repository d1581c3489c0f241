// Copyright 2025 Certen Protocol
package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"strings"
	"testing"
)

func buildMultipart(t *testing.T, statementJSON string, attachments [][]byte) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	jp, err := w.CreatePart(map[string][]string{"Content-Type": {"application/json"}})
	if err != nil {
		t.Fatalf("create json part: %v", err)
	}
	if _, err := jp.Write([]byte(statementJSON)); err != nil {
		t.Fatalf("write json part: %v", err)
	}

	for _, content := range attachments {
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])
		ap, err := w.CreatePart(map[string][]string{
			"Content-Type":              {"application/octet-stream"},
			"Content-Transfer-Encoding": {"binary"},
			"X-Experience-API-Hash":     {hash},
		})
		if err != nil {
			t.Fatalf("create attachment part: %v", err)
		}
		if _, err := ap.Write(content); err != nil {
			t.Fatalf("write attachment part: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf.String(), w.Boundary()
}

func statementWithAttachment(sha2 string) string {
	return fmt.Sprintf(`{
		"actor": {"mbox": "mailto:a@example.com"},
		"verb": {"id": "http://adlnet.gov/expapi/verbs/attempted"},
		"object": {"id": "http://example.com/activity"},
		"attachments": [{
			"usageType": "http://example.com/usage/data",
			"display": {"en-US": "data"},
			"contentType": "application/octet-stream",
			"length": 4,
			"sha2": "%s"
		}]
	}`, sha2)
}

func TestParseMultipartBindsAttachmentByHash(t *testing.T) {
	content := []byte("data")
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	body, boundary := buildMultipart(t, statementWithAttachment(hash), [][]byte{content})
	result, err := Parse(fmt.Sprintf("multipart/mixed; boundary=%s", boundary), strings.NewReader(body), 1<<20)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(result.Statements))
	}
	if len(result.Attachments) != 1 {
		t.Fatalf("expected 1 bound attachment, got %d", len(result.Attachments))
	}
	if !bytes.Equal(result.Attachments[0].Content, content) {
		t.Error("bound attachment content mismatch")
	}
}

func TestParseMultipartRejectsHashMismatch(t *testing.T) {
	content := []byte("data")
	body, boundary := buildMultipart(t, statementWithAttachment("0000000000000000000000000000000000000000000000000000000000000"), [][]byte{content})
	_, err := Parse(fmt.Sprintf("multipart/mixed; boundary=%s", boundary), strings.NewReader(body), 1<<20)
	if err == nil {
		t.Error("expected error for hash mismatch")
	}
}

func TestParseMultipartRejectsMissingPart(t *testing.T) {
	body, boundary := buildMultipart(t, statementWithAttachment("deadbeef"), nil)
	_, err := Parse(fmt.Sprintf("multipart/mixed; boundary=%s", boundary), strings.NewReader(body), 1<<20)
	if err == nil {
		t.Error("expected error when no multipart part matches the declared sha2")
	}
}

func TestParseBareJSONRequiresFileURLOnAttachments(t *testing.T) {
	body := statementWithAttachment("deadbeef")
	_, err := Parse("application/json", strings.NewReader(body), 1<<20)
	if err == nil {
		t.Error("expected error: attachment outside multipart must carry fileUrl")
	}
}

func TestParseBareJSONAllowsAttachmentWithFileURL(t *testing.T) {
	body := `{
		"actor": {"mbox": "mailto:a@example.com"},
		"verb": {"id": "http://adlnet.gov/expapi/verbs/attempted"},
		"object": {"id": "http://example.com/activity"},
		"attachments": [{
			"usageType": "http://example.com/usage/data",
			"display": {"en-US": "data"},
			"contentType": "application/octet-stream",
			"length": 4,
			"sha2": "deadbeef",
			"fileUrl": "http://example.com/file"
		}]
	}`
	result, err := Parse("application/json", strings.NewReader(body), 1<<20)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(result.Statements))
	}
}

func TestParseRejectsBodyOverSizeLimit(t *testing.T) {
	body := statementWithAttachment("deadbeef")
	_, err := Parse("application/json", strings.NewReader(body), 4)
	if err == nil {
		t.Error("expected error for body exceeding size limit")
	}
}

func TestSignatureAttachmentFindsBoundContent(t *testing.T) {
	content := []byte("jws-token")
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	stmtJSON := fmt.Sprintf(`{
		"actor": {"mbox": "mailto:a@example.com"},
		"verb": {"id": "http://adlnet.gov/expapi/verbs/attempted"},
		"object": {"id": "http://example.com/activity"},
		"attachments": [{
			"usageType": "http://adlnet.gov/expapi/attachments/signature",
			"display": {"en-US": "sig"},
			"contentType": "application/octet-stream",
			"length": 9,
			"sha2": "%s"
		}]
	}`, hash)
	body, boundary := buildMultipart(t, stmtJSON, [][]byte{content})
	result, err := Parse(fmt.Sprintf("multipart/mixed; boundary=%s", boundary), strings.NewReader(body), 1<<20)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	found, ok := SignatureAttachment(result.Statements[0], result.Attachments)
	if !ok {
		t.Fatal("expected to find signature attachment")
	}
	if !bytes.Equal(found, content) {
		t.Error("signature attachment content mismatch")
	}
}
