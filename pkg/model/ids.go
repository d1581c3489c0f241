// Copyright 2025 Certen Protocol
package model

import "encoding/json"

// MinimizeActor reduces an Actor to its first IFI (mbox, then
// mbox_sha1sum, then openid, then account) and drops its display name,
// per the "ids" format rule. Groups retain their members, each
// minimized the same way.
func MinimizeActor(a *Actor) {
	if a == nil {
		return
	}
	a.Name = ""
	switch {
	case a.Mbox != "":
		a.MboxSHA1Sum, a.OpenID, a.Account = "", "", nil
	case a.MboxSHA1Sum != "":
		a.OpenID, a.Account = "", nil
	case a.OpenID != "":
		a.Account = nil
	}
	for i := range a.Member {
		MinimizeActor(&a.Member[i])
	}
}

// ToIDSFormat returns a deep copy of s with every Actor minimized to its
// first IFI and no display names, and every language map (Verb.display,
// ActivityDefinition.name/description, interaction component
// descriptions, Attachment.display/description) stripped entirely, the
// "ids" query format.
func ToIDSFormat(s *Statement) (*Statement, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var copy Statement
	if err := json.Unmarshal(raw, &copy); err != nil {
		return nil, err
	}
	copy.ID = s.ID
	copy.Stored = s.Stored
	copy.Voided = s.Voided

	copy.Verb.Display = nil
	MinimizeActor(&copy.Actor)
	if copy.Authority != nil {
		MinimizeActor(copy.Authority)
	}
	minimizeObjectIDs(&copy.Object)
	minimizeContextIDs(copy.Context)
	for i := range copy.Attachments {
		copy.Attachments[i].Display = nil
		copy.Attachments[i].Description = nil
	}
	return &copy, nil
}

func minimizeActivityIDs(act *Activity) {
	if act == nil || act.Definition == nil {
		return
	}
	act.Definition.Name = nil
	act.Definition.Description = nil
	for _, cs := range [][]InteractionComponent{act.Definition.Choices, act.Definition.Scale, act.Definition.Source, act.Definition.Target, act.Definition.Steps} {
		for i := range cs {
			cs[i].Description = nil
		}
	}
}

func minimizeObjectIDs(o *StatementObject) {
	switch o.Kind {
	case ObjectActivity:
		minimizeActivityIDs(o.Activity)
	case ObjectAgent, ObjectGroup:
		MinimizeActor(o.Actor)
	case ObjectSubStatement:
		if o.SubStatement == nil {
			return
		}
		o.SubStatement.Verb.Display = nil
		MinimizeActor(&o.SubStatement.Actor)
		minimizeObjectIDs(&o.SubStatement.Object)
		minimizeContextIDs(o.SubStatement.Context)
		for i := range o.SubStatement.Attachments {
			o.SubStatement.Attachments[i].Display = nil
			o.SubStatement.Attachments[i].Description = nil
		}
	}
}

func minimizeContextIDs(c *Context) {
	if c == nil {
		return
	}
	if c.Instructor != nil {
		MinimizeActor(c.Instructor)
	}
	if c.Team != nil {
		MinimizeActor(c.Team)
	}
	if c.ContextActivities != nil {
		for i := range c.ContextActivities.Parent {
			minimizeActivityIDs(&c.ContextActivities.Parent[i])
		}
		for i := range c.ContextActivities.Grouping {
			minimizeActivityIDs(&c.ContextActivities.Grouping[i])
		}
		for i := range c.ContextActivities.Category {
			minimizeActivityIDs(&c.ContextActivities.Category[i])
		}
		for i := range c.ContextActivities.Other {
			minimizeActivityIDs(&c.ContextActivities.Other[i])
		}
	}
	for i := range c.ContextAgents {
		MinimizeActor(&c.ContextAgents[i].Agent)
	}
	for i := range c.ContextGroups {
		MinimizeActor(&c.ContextGroups[i].Group)
	}
}
