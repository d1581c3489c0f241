// Copyright 2025 Certen Protocol
package model

import (
	"encoding/json"

	"golang.org/x/text/language"

	"github.com/certen/xapi-lrs/pkg/langtag"
)

// Canonicalize returns a deep copy of s with every language map reduced
// to its single best match against prefs (the canonicalize
// operation, backing the "canonical" query format). s itself is left
// untouched.
func Canonicalize(s *Statement, prefs []language.Tag) (*Statement, error) {
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
	filterVerb(&copy.Verb, prefs)
	filterActor(&copy.Actor, prefs)
	if copy.Authority != nil {
		filterActor(copy.Authority, prefs)
	}
	filterObject(&copy.Object, prefs)
	filterContext(copy.Context, prefs)
	for i := range copy.Attachments {
		filterAttachment(&copy.Attachments[i], prefs)
	}
	return &copy, nil
}

func filterVerb(v *Verb, prefs []language.Tag) {
	if v == nil {
		return
	}
	v.Display = langtag.FilterLanguageMap(v.Display, prefs)
}

func filterActor(a *Actor, prefs []language.Tag) {
	if a == nil {
		return
	}
	for i := range a.Member {
		filterActor(&a.Member[i], prefs)
	}
}

func filterActivity(act *Activity, prefs []language.Tag) {
	if act == nil || act.Definition == nil {
		return
	}
	act.Definition.Name = langtag.FilterLanguageMap(act.Definition.Name, prefs)
	act.Definition.Description = langtag.FilterLanguageMap(act.Definition.Description, prefs)
	filterComponents := func(cs []InteractionComponent) {
		for i := range cs {
			cs[i].Description = langtag.FilterLanguageMap(cs[i].Description, prefs)
		}
	}
	filterComponents(act.Definition.Choices)
	filterComponents(act.Definition.Scale)
	filterComponents(act.Definition.Source)
	filterComponents(act.Definition.Target)
	filterComponents(act.Definition.Steps)
}

func filterAttachment(at *Attachment, prefs []language.Tag) {
	at.Display = langtag.FilterLanguageMap(at.Display, prefs)
	at.Description = langtag.FilterLanguageMap(at.Description, prefs)
}

func filterObject(o *StatementObject, prefs []language.Tag) {
	switch o.Kind {
	case ObjectActivity:
		filterActivity(o.Activity, prefs)
	case ObjectAgent, ObjectGroup:
		filterActor(o.Actor, prefs)
	case ObjectSubStatement:
		filterSubStatement(o.SubStatement, prefs)
	}
}

func filterSubStatement(sub *SubStatement, prefs []language.Tag) {
	if sub == nil {
		return
	}
	filterVerb(&sub.Verb, prefs)
	filterActor(&sub.Actor, prefs)
	filterObject(&sub.Object, prefs)
	filterContext(sub.Context, prefs)
	for i := range sub.Attachments {
		filterAttachment(&sub.Attachments[i], prefs)
	}
}

func filterContext(c *Context, prefs []language.Tag) {
	if c == nil {
		return
	}
	if c.Instructor != nil {
		filterActor(c.Instructor, prefs)
	}
	if c.Team != nil {
		filterActor(c.Team, prefs)
	}
	if c.ContextActivities != nil {
		for i := range c.ContextActivities.Parent {
			filterActivity(&c.ContextActivities.Parent[i], prefs)
		}
		for i := range c.ContextActivities.Grouping {
			filterActivity(&c.ContextActivities.Grouping[i], prefs)
		}
		for i := range c.ContextActivities.Category {
			filterActivity(&c.ContextActivities.Category[i], prefs)
		}
		for i := range c.ContextActivities.Other {
			filterActivity(&c.ContextActivities.Other[i], prefs)
		}
	}
	for i := range c.ContextAgents {
		filterActor(&c.ContextAgents[i].Agent, prefs)
	}
	for i := range c.ContextGroups {
		filterActor(&c.ContextGroups[i].Group, prefs)
	}
}
