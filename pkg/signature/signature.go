// Copyright 2025 Certen Protocol
//
// Package signature verifies the compact JWS attachments xAPI Statements
// may carry, without performing X.509 trust-chain validation (an
// acknowledged open item).
package signature

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/golang-jwt/jwt/v4"

	"github.com/certen/xapi-lrs/pkg/apierror"
	"github.com/certen/xapi-lrs/pkg/model"
)

// allowedAlgs are the only JWS algorithms a Statement signature may use.
var allowedAlgs = map[string]bool{
	"RS256": true,
	"RS384": true,
	"RS512": true,
}

// Result reports the outcome of verifying one signature attachment.
type Result struct {
	Alg      string
	Warnings []string
}

// Verifier decodes and structurally validates compact JWS signature
// attachments against their enclosing Statement.
type Verifier struct {
	logger *log.Logger
}

// New returns a Verifier that logs non-fatal warnings (e.g. missing x5c)
// through logger.
func New(logger *log.Logger) *Verifier {
	return &Verifier{logger: logger}
}

// Verify parses the compact JWS token and checks that its payload's
// fingerprint equals s's signature-payload fingerprint (the Statement
// canonicalized with attachments elided). It performs no signature
// cryptographic verification or X.509 chain validation: it checks only
// structural well-formedness and alg whitelist.
func (v *Verifier) Verify(token []byte, s *model.Statement) (*Result, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	parsedToken, _, err := parser.ParseUnverified(string(token), claims)
	if err != nil {
		return nil, apierror.Validation("malformed JWS signature: %v", err)
	}

	alg, _ := parsedToken.Header["alg"].(string)
	if !allowedAlgs[alg] {
		return nil, apierror.Validation("signature alg %q is not one of RS256, RS384, RS512", alg)
	}

	var warnings []string
	if x5c, ok := parsedToken.Header["x5c"]; !ok || isEmptyX5C(x5c) {
		warnings = append(warnings, "signature header missing x5c certificate chain")
		if v.logger != nil {
			v.logger.Printf("warning: JWS signature missing x5c")
		}
	}

	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("signature: re-marshal payload claims: %w", err)
	}
	payloadStatement, err := model.ParseStatement(payloadBytes)
	if err != nil {
		return nil, apierror.Validation("signature payload is not a valid Statement: %v", err)
	}

	payloadFP, err := payloadStatement.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("signature: payload fingerprint: %w", err)
	}
	wantFP, err := s.SignaturePayloadFingerprint()
	if err != nil {
		return nil, fmt.Errorf("signature: statement payload fingerprint: %w", err)
	}
	if payloadFP != wantFP {
		return nil, apierror.Validation("signature payload does not match the enclosing statement")
	}

	return &Result{Alg: alg, Warnings: warnings}, nil
}

func isEmptyX5C(v any) bool {
	arr, ok := v.([]any)
	return !ok || len(arr) == 0
}
