// Copyright 2025 Certen Protocol
package model

import "testing"

func TestMinimizeActorKeepsOnlyFirstIFI(t *testing.T) {
	a := &Actor{
		Name:    "Learner",
		Mbox:    "mailto:a@example.com",
		OpenID:  "http://example.com/u/1",
		Account: &Account{HomePage: "http://example.com", Name: "a"},
	}
	MinimizeActor(a)
	if a.Name != "" {
		t.Error("expected name to be stripped")
	}
	if a.Mbox == "" {
		t.Error("expected mbox (highest priority IFI) to be retained")
	}
	if a.OpenID != "" || a.Account != nil {
		t.Error("expected lower-priority IFIs to be cleared")
	}
}

func TestMinimizeActorRecursesIntoMembers(t *testing.T) {
	a := &Actor{
		IsGroup: true,
		Member:  []Actor{{Name: "Member", Mbox: "mailto:m@example.com", OpenID: "http://example.com/u/2"}},
	}
	MinimizeActor(a)
	if a.Member[0].Name != "" || a.Member[0].OpenID != "" {
		t.Error("expected member to be minimized too")
	}
}

func TestToIDSFormatStripsLanguageMapsAndNames(t *testing.T) {
	s := &Statement{
		Actor: Actor{Mbox: "mailto:a@example.com", Name: "Learner"},
		Verb:  Verb{ID: "http://adlnet.gov/expapi/verbs/completed", Display: LanguageMap{"en-US": "completed"}},
		Object: StatementObject{
			Kind: ObjectActivity,
			Activity: &Activity{
				ID: "http://example.com/a",
				Definition: &ActivityDefinition{
					Name: LanguageMap{"en-US": "Algebra"},
				},
			},
		},
	}
	out, err := ToIDSFormat(s)
	if err != nil {
		t.Fatalf("ToIDSFormat: %v", err)
	}
	if out.Actor.Name != "" {
		t.Error("expected actor name to be stripped")
	}
	if out.Verb.Display != nil {
		t.Error("expected verb display to be stripped")
	}
	if out.Object.Activity.Definition.Name != nil {
		t.Error("expected activity definition name to be stripped")
	}
	if out.Object.Activity.ID != s.Object.Activity.ID {
		t.Error("expected activity id to be preserved")
	}
}

func TestToIDSFormatDoesNotMutateInput(t *testing.T) {
	s := &Statement{
		Actor: Actor{Mbox: "mailto:a@example.com", Name: "Learner"},
		Verb:  Verb{ID: "http://adlnet.gov/expapi/verbs/completed"},
		Object: StatementObject{
			Kind:     ObjectActivity,
			Activity: &Activity{ID: "http://example.com/a"},
		},
	}
	_, err := ToIDSFormat(s)
	if err != nil {
		t.Fatalf("ToIDSFormat: %v", err)
	}
	if s.Actor.Name != "Learner" {
		t.Error("ToIDSFormat must not mutate the original statement")
	}
}
