// Copyright 2025 Certen Protocol
//
// Package ingest parses multipart/mixed Statement submissions, binding
// binary attachment parts to Statement attachment descriptors by SHA-2.
package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/certen/xapi-lrs/pkg/apierror"
	"github.com/certen/xapi-lrs/pkg/model"
)

// AttachmentPart is one binary part bound to a Statement attachment
// descriptor by its X-Experience-API-Hash header.
type AttachmentPart struct {
	SHA2        string
	ContentType string
	Content     []byte
}

// Result is the parsed outcome of an ingest request: the Statements
// carried in the first JSON part, and any bound attachment parts.
type Result struct {
	Statements  []*model.Statement
	Attachments []AttachmentPart
}

// Parse reads a Statement ingest request body. If contentType is
// multipart/mixed it parses the first part as JSON and binds the
// remaining binary parts to attachment descriptors by hash; otherwise
// it treats body as a bare JSON Statement or array, and requires every
// attachment descriptor to carry a fileUrl instead.
func Parse(contentType string, body io.Reader, maxBytes int64) (*Result, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, apierror.Validation("invalid Content-Type header: %v", err)
	}

	limited := io.LimitReader(body, maxBytes+1)

	if mediaType != "multipart/mixed" {
		raw, err := io.ReadAll(limited)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindEncoding, err, "reading request body")
		}
		if int64(len(raw)) > maxBytes {
			return nil, apierror.Validation("request body exceeds the configured size limit")
		}
		statements, err := model.ParseStatements(raw)
		if err != nil {
			return nil, err
		}
		for _, s := range statements {
			for _, at := range s.Attachments {
				if at.FileURL == "" {
					return nil, apierror.Validation("attachment %q requires fileUrl outside multipart/mixed", at.SHA2)
				}
			}
		}
		return &Result{Statements: statements}, nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, apierror.Validation("multipart/mixed request missing boundary parameter")
	}

	reader := multipart.NewReader(limited, boundary)
	var rawJSON []byte
	var parts []AttachmentPart
	var totalRead int64

	for i := 0; ; i++ {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apierror.Validation("malformed multipart part: %v", err)
		}

		content, err := io.ReadAll(part)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindEncoding, err, "reading multipart part")
		}
		totalRead += int64(len(content))
		if totalRead > maxBytes {
			return nil, apierror.Validation("request body exceeds the configured size limit")
		}

		ct := part.Header.Get("Content-Type")
		if ct != "" && !httpguts.ValidHeaderFieldValue(ct) {
			return nil, apierror.Validation("part %d has a malformed Content-Type header", i)
		}

		if i == 0 {
			pt, _, err := mime.ParseMediaType(ct)
			if err != nil || pt != "application/json" {
				return nil, apierror.Validation("first multipart part must be Content-Type: application/json")
			}
			rawJSON = content
			continue
		}

		if !httpguts.HeaderValuesContainsToken(part.Header["Content-Transfer-Encoding"], "binary") {
			return nil, apierror.Validation("attachment part %d missing or invalid Content-Transfer-Encoding: binary", i)
		}
		hash := strings.ToLower(strings.TrimSpace(part.Header.Get("X-Experience-API-Hash")))
		if hash == "" || !httpguts.ValidHeaderFieldValue(hash) {
			return nil, apierror.Validation("attachment part %d missing X-Experience-API-Hash", i)
		}
		if err := verifySHA2(hash, content); err != nil {
			return nil, err
		}

		if ct == "" {
			ct = "application/octet-stream"
		}
		parts = append(parts, AttachmentPart{SHA2: hash, ContentType: ct, Content: content})
	}

	if rawJSON == nil {
		return nil, apierror.Validation("multipart/mixed request has no parts")
	}

	statements, err := model.ParseStatements(rawJSON)
	if err != nil {
		return nil, err
	}

	byHash := make(map[string]AttachmentPart, len(parts))
	for _, p := range parts {
		byHash[p.SHA2] = p
	}

	var bound []AttachmentPart
	for _, s := range statements {
		for _, at := range s.Attachments {
			if at.FileURL != "" {
				continue
			}
			p, ok := byHash[strings.ToLower(at.SHA2)]
			if !ok {
				return nil, apierror.Validation("no multipart part found for attachment sha2 %q", at.SHA2)
			}
			bound = append(bound, p)
		}
	}

	return &Result{Statements: statements, Attachments: bound}, nil
}

func verifySHA2(declaredHash string, content []byte) error {
	sum := sha256.Sum256(content)
	actual := hex.EncodeToString(sum[:])
	if !strings.EqualFold(actual, declaredHash) {
		return apierror.Validation("attachment hash mismatch: declared %s, computed %s", declaredHash, actual)
	}
	return nil
}

// SignatureAttachment returns the binary content of s's signature-usage
// attachment, if present, for handoff to the Signature Verifier.
func SignatureAttachment(s *model.Statement, parts []AttachmentPart) ([]byte, bool) {
	for _, at := range s.Attachments {
		if at.UsageType != model.SignatureUsageType {
			continue
		}
		for _, p := range parts {
			if strings.EqualFold(p.SHA2, at.SHA2) {
				return p.Content, true
			}
		}
	}
	return nil, false
}

// WriteMultipart renders statements plus their bound attachment content
// back out as a multipart/mixed response body, for GET ?attachments=true.
func WriteMultipart(w io.Writer, boundary string, statementsJSON []byte, attachments []AttachmentPart) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return fmt.Errorf("ingest: set boundary: %w", err)
	}

	jsonHeader := make(map[string][]string)
	jsonHeader["Content-Type"] = []string{"application/json"}
	jp, err := mw.CreatePart(jsonHeader)
	if err != nil {
		return err
	}
	if _, err := jp.Write(statementsJSON); err != nil {
		return err
	}

	for _, at := range attachments {
		header := make(map[string][]string)
		header["Content-Type"] = []string{at.ContentType}
		header["Content-Transfer-Encoding"] = []string{"binary"}
		header["X-Experience-API-Hash"] = []string{at.SHA2}
		p, err := mw.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := io.Copy(p, bytes.NewReader(at.Content)); err != nil {
			return err
		}
	}

	return mw.Close()
}

// DecodeStatement is a convenience for handlers decoding a single
// Statement body (PUT /statements) without multipart support.
func DecodeStatement(body io.Reader, maxBytes int64) (*model.Statement, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, apierror.Wrap(apierror.KindEncoding, err, "reading request body")
	}
	if int64(len(raw)) > maxBytes {
		return nil, apierror.Validation("request body exceeds the configured size limit")
	}
	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, apierror.Validation("invalid JSON body: %v", err)
	}
	return model.ParseStatement(raw)
}
