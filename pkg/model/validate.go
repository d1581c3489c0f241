// Copyright 2025 Certen Protocol
package model

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/certen/xapi-lrs/pkg/fingerprint"
)

// Validate enforces every xAPI syntactic and semantic constraint at parse
// time: missing actor/verb/object; more than one IFI per Agent; zero IFIs
// on an identified Actor; anonymous Group without members; SubStatement
// nested in a SubStatement; voiding Verb paired with a non-StatementRef
// Object; unknown ObjectType (already rejected during unmarshal).
func (s *Statement) Validate(depth int) error {
	if s.Verb.ID == "" {
		return &ValidationError{Msg: "statement missing verb.id"}
	}
	if s.Object.Kind == 0 && s.Object.Activity == nil && s.Object.Actor == nil &&
		s.Object.StatementRef == nil && s.Object.SubStatement == nil {
		return &ValidationError{Msg: "statement missing object"}
	}
	if err := s.Actor.Validate(); err != nil {
		return fmt.Errorf("actor: %w", err)
	}
	if err := validateObject(s.Object, depth); err != nil {
		return err
	}
	if s.Verb.ID == VoidingVerbID && s.Object.Kind != ObjectStatementRef {
		return &ValidationError{Msg: "voiding verb requires a StatementRef object"}
	}
	if s.Authority != nil {
		if err := s.Authority.Validate(); err != nil {
			return fmt.Errorf("authority: %w", err)
		}
	}
	if s.Context != nil {
		if err := s.Context.Validate(); err != nil {
			return err
		}
	}
	for i, at := range s.Attachments {
		if at.FileURL == "" && at.SHA2 == "" {
			return &ValidationError{Msg: fmt.Sprintf("attachment[%d] has neither fileUrl nor sha2", i)}
		}
	}
	return nil
}

func validateObject(o StatementObject, depth int) error {
	switch o.Kind {
	case ObjectActivity:
		if o.Activity == nil || o.Activity.ID == "" {
			return &ValidationError{Msg: "activity object missing id"}
		}
	case ObjectAgent, ObjectGroup:
		if o.Actor == nil {
			return &ValidationError{Msg: "agent/group object missing body"}
		}
		if err := o.Actor.Validate(); err != nil {
			return fmt.Errorf("object actor: %w", err)
		}
	case ObjectStatementRef:
		if o.StatementRef == nil {
			return &ValidationError{Msg: "statementref object missing body"}
		}
	case ObjectSubStatement:
		if depth > 0 {
			return &ValidationError{Msg: "substatement nested in a substatement"}
		}
		if o.SubStatement == nil {
			return &ValidationError{Msg: "substatement object missing body"}
		}
		if err := o.SubStatement.Validate(depth + 1); err != nil {
			return err
		}
	default:
		return &ValidationError{Msg: "unknown object kind"}
	}
	return nil
}

// Validate enforces the same rules as Statement.Validate for a nested
// SubStatement, minus the id/stored/authority/voided fields it does not carry.
func (sub *SubStatement) Validate(depth int) error {
	if sub.Verb.ID == "" {
		return &ValidationError{Msg: "substatement missing verb.id"}
	}
	if err := sub.Actor.Validate(); err != nil {
		return fmt.Errorf("substatement actor: %w", err)
	}
	if err := validateObject(sub.Object, depth); err != nil {
		return err
	}
	if sub.Verb.ID == VoidingVerbID {
		return &ValidationError{Msg: "substatement may not use the voiding verb"}
	}
	if sub.Context != nil {
		if err := sub.Context.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate enforces Actor's IFI cardinality invariant: an identified
// Agent has exactly one IFI; an identified Group has exactly one IFI and
// zero-or-more members; an anonymous Group has zero IFIs and at least
// one member.
func (a *Actor) Validate() error {
	ifiCount := a.ifiCount()
	if !a.IsGroup {
		if ifiCount != 1 {
			return &ValidationError{Msg: fmt.Sprintf("agent must have exactly one IFI, found %d", ifiCount)}
		}
		if err := a.validateIFIShape(); err != nil {
			return err
		}
		return nil
	}
	// Group.
	if ifiCount > 1 {
		return &ValidationError{Msg: fmt.Sprintf("group must have at most one IFI, found %d", ifiCount)}
	}
	if ifiCount == 0 && len(a.Member) == 0 {
		return &ValidationError{Msg: "anonymous group must have at least one member"}
	}
	if err := a.validateIFIShape(); err != nil {
		return err
	}
	for i, m := range a.Member {
		if m.IsGroup {
			return &ValidationError{Msg: fmt.Sprintf("group member[%d] must not itself be a group", i)}
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("member[%d]: %w", i, err)
		}
	}
	return nil
}

func (a *Actor) ifiCount() int {
	n := 0
	if a.Mbox != "" {
		n++
	}
	if a.MboxSHA1Sum != "" {
		n++
	}
	if a.OpenID != "" {
		n++
	}
	if a.Account != nil {
		n++
	}
	return n
}

func (a *Actor) validateIFIShape() error {
	if a.Mbox != "" {
		if !strings.HasPrefix(strings.ToLower(a.Mbox), "mailto:") {
			return &ValidationError{Msg: fmt.Sprintf("mbox %q must use the mailto: scheme", a.Mbox)}
		}
		if _, err := mail.ParseAddress(a.Mbox[len("mailto:"):]); err != nil {
			return &ValidationError{Msg: fmt.Sprintf("mbox %q is not a valid email address: %v", a.Mbox, err)}
		}
	}
	if a.MboxSHA1Sum != "" && len(a.MboxSHA1Sum) != 40 {
		return &ValidationError{Msg: fmt.Sprintf("mbox_sha1sum %q must be 40 hex characters", a.MboxSHA1Sum)}
	}
	if a.Account != nil {
		if a.Account.HomePage == "" || a.Account.Name == "" {
			return &ValidationError{Msg: "account requires both homePage and name"}
		}
	}
	return nil
}

// IFIs returns the Actor's identifiers as (kind, value) pairs in a
// stable order, normalized for storage/lookup.
func (a *Actor) IFIs() []IFI {
	var out []IFI
	if a.Mbox != "" {
		out = append(out, IFI{Kind: IFIMbox, Value: fingerprint.NormalizeMailbox(a.Mbox)})
	}
	if a.MboxSHA1Sum != "" {
		out = append(out, IFI{Kind: IFIMboxSHA1Sum, Value: strings.ToLower(a.MboxSHA1Sum)})
	}
	if a.OpenID != "" {
		out = append(out, IFI{Kind: IFIOpenID, Value: a.OpenID})
	}
	if a.Account != nil {
		out = append(out, IFI{Kind: IFIAccount, Value: a.Account.HomePage + ":" + a.Account.Name})
	}
	return out
}

// IFI is an Inverse Functional Identifier (kind, value) pair.
type IFI struct {
	Kind  IFIKind
	Value string
}

// Validate checks Context's embedded Actors: instructor, team (which must
// be a Group), contextAgents and contextGroups (which must be Groups).
// contextActivities are not examined.
func (c *Context) Validate() error {
	if c.Instructor != nil {
		if err := c.Instructor.Validate(); err != nil {
			return fmt.Errorf("context.instructor: %w", err)
		}
	}
	if c.Team != nil {
		if !c.Team.IsGroup {
			return &ValidationError{Msg: "context.team must be a Group"}
		}
		if err := c.Team.Validate(); err != nil {
			return fmt.Errorf("context.team: %w", err)
		}
	}
	for i, ca := range c.ContextAgents {
		if err := ca.Agent.Validate(); err != nil {
			return fmt.Errorf("context.contextAgents[%d]: %w", i, err)
		}
	}
	for i, cg := range c.ContextGroups {
		if !cg.Group.IsGroup {
			return &ValidationError{Msg: fmt.Sprintf("context.contextGroups[%d] must be a Group", i)}
		}
		if err := cg.Group.Validate(); err != nil {
			return fmt.Errorf("context.contextGroups[%d]: %w", i, err)
		}
	}
	return nil
}
