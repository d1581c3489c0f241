// Copyright 2025 Certen Protocol
package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ParseStatement parses a single Statement from JSON and validates it
// against every xAPI syntactic and semantic constraint enforced at the
// ingest boundary. The returned Statement carries the raw bytes as Raw.
func ParseStatement(data []byte) (*Statement, error) {
	var s Statement
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("malformed Statement JSON: %v", err)}
	}
	s.Raw = append(json.RawMessage(nil), data...)
	if err := s.Validate(0); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseStatements parses an ingest body that is either a single
// Statement object or a JSON array of Statements.
func ParseStatements(data []byte) ([]*Statement, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Msg: "empty Statement payload"}
	}
	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("malformed Statement array: %v", err)}
		}
		out := make([]*Statement, 0, len(raws))
		for i, raw := range raws {
			st, err := ParseStatement(raw)
			if err != nil {
				return nil, fmt.Errorf("statement[%d]: %w", i, err)
			}
			out = append(out, st)
		}
		return out, nil
	}
	st, err := ParseStatement(trimmed)
	if err != nil {
		return nil, err
	}
	return []*Statement{st}, nil
}

// actorShim mirrors Actor's JSON shape for discriminator inspection.
type actorShim struct {
	ObjectType  string   `json:"objectType"`
	Name        string   `json:"name"`
	Mbox        string   `json:"mbox"`
	MboxSHA1Sum string   `json:"mbox_sha1sum"`
	OpenID      string   `json:"openid"`
	Account     *Account `json:"account"`
	Member      []Actor  `json:"member"`
}

// UnmarshalJSON discriminates Agent vs Group by the objectType field,
// defaulting to Agent when absent.
func (a *Actor) UnmarshalJSON(data []byte) error {
	var shim actorShim
	if err := json.Unmarshal(data, &shim); err != nil {
		return &ValidationError{Msg: fmt.Sprintf("malformed Actor: %v", err)}
	}
	a.ObjectType = shim.ObjectType
	a.Name = shim.Name
	a.Mbox = shim.Mbox
	a.MboxSHA1Sum = shim.MboxSHA1Sum
	a.OpenID = shim.OpenID
	a.Account = shim.Account
	a.Member = shim.Member
	a.IsGroup = shim.ObjectType == "Group"
	return nil
}

// MarshalJSON always emits an explicit objectType so downstream
// consumers never have to guess the Agent/Group default.
func (a Actor) MarshalJSON() ([]byte, error) {
	objType := a.ObjectType
	if objType == "" {
		if a.IsGroup {
			objType = "Group"
		} else {
			objType = "Agent"
		}
	}
	shim := actorShim{
		ObjectType:  objType,
		Name:        a.Name,
		Mbox:        a.Mbox,
		MboxSHA1Sum: a.MboxSHA1Sum,
		OpenID:      a.OpenID,
		Account:     a.Account,
	}
	if a.IsGroup {
		shim.Member = a.Member
	}
	return json.Marshal(shim)
}

type objectTypeShim struct {
	ObjectType string `json:"objectType"`
}

// UnmarshalJSON dispatches on the objectType discriminator to build the
// correct one of the five Object variants.
func (o *StatementObject) UnmarshalJSON(data []byte) error {
	var shim objectTypeShim
	if err := json.Unmarshal(data, &shim); err != nil {
		return &ValidationError{Msg: fmt.Sprintf("malformed Object: %v", err)}
	}
	switch shim.ObjectType {
	case "", "Activity":
		var act Activity
		if err := json.Unmarshal(data, &act); err != nil {
			return &ValidationError{Msg: fmt.Sprintf("malformed Activity Object: %v", err)}
		}
		o.Kind = ObjectActivity
		o.Activity = &act
	case "Agent":
		var actor Actor
		if err := json.Unmarshal(data, &actor); err != nil {
			return &ValidationError{Msg: fmt.Sprintf("malformed Agent Object: %v", err)}
		}
		o.Kind = ObjectAgent
		o.Actor = &actor
	case "Group":
		var actor Actor
		if err := json.Unmarshal(data, &actor); err != nil {
			return &ValidationError{Msg: fmt.Sprintf("malformed Group Object: %v", err)}
		}
		o.Kind = ObjectGroup
		o.Actor = &actor
	case "StatementRef":
		var ref StatementRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return &ValidationError{Msg: fmt.Sprintf("malformed StatementRef Object: %v", err)}
		}
		o.Kind = ObjectStatementRef
		o.StatementRef = &ref
	case "SubStatement":
		var sub SubStatement
		if err := json.Unmarshal(data, &sub); err != nil {
			return &ValidationError{Msg: fmt.Sprintf("malformed SubStatement Object: %v", err)}
		}
		o.Kind = ObjectSubStatement
		o.SubStatement = &sub
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown Object objectType %q", shim.ObjectType)}
	}
	return nil
}

// MarshalJSON re-serializes whichever variant Kind selects.
func (o StatementObject) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case ObjectActivity:
		return json.Marshal(o.Activity)
	case ObjectAgent, ObjectGroup:
		return json.Marshal(o.Actor)
	case ObjectStatementRef:
		return json.Marshal(o.StatementRef)
	case ObjectSubStatement:
		return json.Marshal(o.SubStatement)
	default:
		return nil, &ValidationError{Msg: "cannot marshal Object: unknown Kind"}
	}
}

// UnmarshalJSON validates the StatementRef's fixed objectType tag.
func (r *StatementRef) UnmarshalJSON(data []byte) error {
	type shim struct {
		ObjectType string    `json:"objectType"`
		ID         uuid.UUID `json:"id"`
	}
	var s shim
	if err := json.Unmarshal(data, &s); err != nil {
		return &ValidationError{Msg: fmt.Sprintf("malformed StatementRef: %v", err)}
	}
	if s.ObjectType != "StatementRef" {
		return &ValidationError{Msg: fmt.Sprintf("StatementRef objectType must be \"StatementRef\", got %q", s.ObjectType)}
	}
	r.ObjectType = s.ObjectType
	r.ID = s.ID
	return nil
}
