// Copyright 2025 Certen Protocol
package model

import (
	"github.com/certen/xapi-lrs/pkg/fingerprint"
)

// Fingerprint computes the Actor's canonical identity, used by the
// Actor Resolver to find-or-create the backing row. Unlike Verb and
// Activity (deduplicated by IRI), Actors with no IFI overlap but
// identical content are the same row; Actors sharing an IFI but
// differing in e.g. display name are deliberately distinct rows so the
// persona-union walk in pkg/actor can discover both.
func (a Actor) Fingerprint() (uint64, error) {
	return fingerprint.Of(a.canonicalValue())
}

func (a Actor) canonicalValue() map[string]any {
	m := map[string]any{"objectType": a.objectTypeOrDefault()}
	if a.Name != "" {
		m["name"] = a.Name
	}
	if a.Mbox != "" {
		m["mbox"] = fingerprint.NormalizeMailbox(a.Mbox)
	}
	if a.MboxSHA1Sum != "" {
		m["mbox_sha1sum"] = a.MboxSHA1Sum
	}
	if a.OpenID != "" {
		m["openid"] = fingerprint.NormalizeIRI(a.OpenID)
	}
	if a.Account != nil {
		m["account"] = map[string]any{
			"homePage": fingerprint.NormalizeIRI(a.Account.HomePage),
			"name":     a.Account.Name,
		}
	}
	if a.IsGroup && len(a.Member) > 0 {
		members := make([]any, len(a.Member))
		for i, mem := range a.Member {
			members[i] = mem.canonicalValue()
		}
		m["member"] = members
	}
	return m
}

func (a Actor) objectTypeOrDefault() string {
	if a.IsGroup {
		return "Group"
	}
	return "Agent"
}

func (v Verb) canonicalValue() map[string]any {
	return map[string]any{"id": fingerprint.NormalizeIRI(v.ID)}
}

func (ad *ActivityDefinition) canonicalValue() map[string]any {
	if ad == nil {
		return nil
	}
	m := map[string]any{}
	if ad.Type != "" {
		m["type"] = fingerprint.NormalizeIRI(ad.Type)
	}
	if ad.InteractionType != "" {
		m["interactionType"] = ad.InteractionType
	}
	if len(ad.CorrectResponsesPattern) > 0 {
		m["correctResponsesPattern"] = toAnySlice(ad.CorrectResponsesPattern)
	}
	addComponents := func(key string, cs []InteractionComponent) {
		if len(cs) == 0 {
			return
		}
		arr := make([]any, len(cs))
		for i, c := range cs {
			arr[i] = map[string]any{"id": c.ID}
		}
		m[key] = arr
	}
	addComponents("choices", ad.Choices)
	addComponents("scale", ad.Scale)
	addComponents("source", ad.Source)
	addComponents("target", ad.Target)
	addComponents("steps", ad.Steps)
	return m
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (act Activity) canonicalValue() map[string]any {
	m := map[string]any{"id": fingerprint.NormalizeIRI(act.ID)}
	if def := act.Definition.canonicalValue(); len(def) > 0 {
		m["definition"] = def
	}
	return m
}

func (r StatementRef) canonicalValue() map[string]any {
	return map[string]any{"id": r.ID.String()}
}

func (at Attachment) canonicalValue() map[string]any {
	m := map[string]any{
		"usageType":   fingerprint.NormalizeIRI(at.UsageType),
		"contentType": at.ContentType,
		"length":      at.Length,
		"sha2":        at.SHA2,
	}
	if at.FileURL != "" {
		m["fileUrl"] = fingerprint.NormalizeIRI(at.FileURL)
	}
	return m
}

func (res *Result) canonicalValue() map[string]any {
	if res == nil {
		return nil
	}
	m := map[string]any{}
	if res.Score != nil {
		sc := map[string]any{}
		if res.Score.Scaled != nil {
			sc["scaled"] = *res.Score.Scaled
		}
		if res.Score.Raw != nil {
			sc["raw"] = *res.Score.Raw
		}
		if res.Score.Min != nil {
			sc["min"] = *res.Score.Min
		}
		if res.Score.Max != nil {
			sc["max"] = *res.Score.Max
		}
		m["score"] = sc
	}
	if res.Success != nil {
		m["success"] = *res.Success
	}
	if res.Completion != nil {
		m["completion"] = *res.Completion
	}
	if res.Response != "" {
		m["response"] = res.Response
	}
	if res.Duration != "" {
		m["duration"] = res.Duration
	}
	if len(res.Extensions) > 0 {
		m["extensions"] = res.Extensions
	}
	return m
}

func (c *Context) canonicalValue() map[string]any {
	if c == nil {
		return nil
	}
	m := map[string]any{}
	if c.Registration != nil {
		m["registration"] = c.Registration.String()
	}
	if c.Instructor != nil {
		m["instructor"] = c.Instructor.canonicalValue()
	}
	if c.Team != nil {
		m["team"] = c.Team.canonicalValue()
	}
	if c.ContextActivities != nil {
		ca := map[string]any{}
		addActs := func(key string, acts []Activity) {
			if len(acts) == 0 {
				return
			}
			arr := make([]any, len(acts))
			for i, act := range acts {
				arr[i] = act.canonicalValue()
			}
			ca[key] = arr
		}
		addActs("parent", c.ContextActivities.Parent)
		addActs("grouping", c.ContextActivities.Grouping)
		addActs("category", c.ContextActivities.Category)
		addActs("other", c.ContextActivities.Other)
		if len(ca) > 0 {
			m["contextActivities"] = ca
		}
	}
	if len(c.ContextAgents) > 0 {
		arr := make([]any, len(c.ContextAgents))
		for i, ca := range c.ContextAgents {
			arr[i] = map[string]any{
				"agent":         ca.Agent.canonicalValue(),
				"relevantTypes": toAnySlice(ca.RelevantTypes),
			}
		}
		m["contextAgents"] = arr
	}
	if len(c.ContextGroups) > 0 {
		arr := make([]any, len(c.ContextGroups))
		for i, cg := range c.ContextGroups {
			arr[i] = map[string]any{
				"group":         cg.Group.canonicalValue(),
				"relevantTypes": toAnySlice(cg.RelevantTypes),
			}
		}
		m["contextGroups"] = arr
	}
	if c.Revision != "" {
		m["revision"] = c.Revision
	}
	if c.Platform != "" {
		m["platform"] = c.Platform
	}
	if c.Language != "" {
		m["language"] = c.Language
	}
	if c.Statement != nil {
		m["statement"] = c.Statement.canonicalValue()
	}
	if len(c.Extensions) > 0 {
		m["extensions"] = c.Extensions
	}
	return m
}

func (o StatementObject) canonicalValue() map[string]any {
	switch o.Kind {
	case ObjectActivity:
		return withObjectType(o.Activity.canonicalValue(), "Activity")
	case ObjectAgent:
		return withObjectType(o.Actor.canonicalValue(), "Agent")
	case ObjectGroup:
		return withObjectType(o.Actor.canonicalValue(), "Group")
	case ObjectStatementRef:
		return withObjectType(o.StatementRef.canonicalValue(), "StatementRef")
	case ObjectSubStatement:
		return withObjectType(o.SubStatement.canonicalValue(), "SubStatement")
	default:
		return nil
	}
}

func withObjectType(m map[string]any, objType string) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m["objectType"] = objType
	return m
}

func (sub *SubStatement) canonicalValue() map[string]any {
	m := map[string]any{
		"actor":  sub.Actor.canonicalValue(),
		"verb":   sub.Verb.canonicalValue(),
		"object": sub.Object.canonicalValue(),
	}
	if result := sub.Result.canonicalValue(); len(result) > 0 {
		m["result"] = result
	}
	if ctx := sub.Context.canonicalValue(); len(ctx) > 0 {
		m["context"] = ctx
	}
	if sub.Timestamp != nil {
		m["timestamp"] = sub.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	if len(sub.Attachments) > 0 {
		arr := make([]any, len(sub.Attachments))
		for i, at := range sub.Attachments {
			arr[i] = at.canonicalValue()
		}
		m["attachments"] = arr
	}
	return m
}

// canonicalValue builds the Statement's content identity. id, stored,
// authority and version are deliberately excluded: they are assigned or
// may legitimately vary across otherwise-identical submissions (a
// client re-POSTs the same content without an id; the server assigns a
// possibly-different authority) and must not affect deduplication.
// includeAttachments is false when computing the payload fingerprint a
// JWS signature is checked against: its attachments field is elided
// from canonicalization.
func (s *Statement) canonicalValue(includeAttachments bool) map[string]any {
	m := map[string]any{
		"actor": s.Actor.canonicalValue(),
		"verb":  s.Verb.canonicalValue(),
	}
	if obj := s.Object.canonicalValue(); obj != nil {
		m["object"] = obj
	}
	if result := s.Result.canonicalValue(); len(result) > 0 {
		m["result"] = result
	}
	if ctx := s.Context.canonicalValue(); len(ctx) > 0 {
		m["context"] = ctx
	}
	if !s.Timestamp.IsZero() {
		m["timestamp"] = s.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	if includeAttachments && len(s.Attachments) > 0 {
		arr := make([]any, len(s.Attachments))
		for i, at := range s.Attachments {
			arr[i] = at.canonicalValue()
		}
		m["attachments"] = arr
	}
	return m
}

// Fingerprint computes the Statement's content-identity digest used for
// idempotent-reingest deduplication and the Statement Store's
// fingerprint uniqueness check.
func (s *Statement) Fingerprint() (uint64, error) {
	return fingerprint.Of(s.canonicalValue(true))
}

// SignaturePayloadFingerprint computes the fingerprint a JWS signature's
// payload must match, with attachments elided.
func (s *Statement) SignaturePayloadFingerprint() (uint64, error) {
	return fingerprint.Of(s.canonicalValue(false))
}

// Equivalent reports whether two Statements have the same content
// fingerprint, i.e. are the same Statement for deduplication purposes.
func Equivalent(a, b *Statement) (bool, error) {
	fa, err := a.Fingerprint()
	if err != nil {
		return false, err
	}
	fb, err := b.Fingerprint()
	if err != nil {
		return false, err
	}
	return fa == fb, nil
}
