// Copyright 2025 Certen Protocol
package model

import "testing"

func TestLanguageMapMergeUnionsKeys(t *testing.T) {
	a := LanguageMap{"en-US": "Hello"}
	b := LanguageMap{"fr-FR": "Bonjour"}
	out := a.Merge(b)
	if len(out) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(out))
	}
	if out["en-US"] != "Hello" || out["fr-FR"] != "Bonjour" {
		t.Errorf("unexpected merge result: %v", out)
	}
}

func TestLanguageMapMergeOtherWinsOnConflict(t *testing.T) {
	a := LanguageMap{"en-US": "Old"}
	b := LanguageMap{"en-US": "New"}
	out := a.Merge(b)
	if out["en-US"] != "New" {
		t.Errorf("expected other's value to win, got %q", out["en-US"])
	}
}

func TestLanguageMapMergeDoesNotMutateReceiver(t *testing.T) {
	a := LanguageMap{"en-US": "Hello"}
	_ = a.Merge(LanguageMap{"en-US": "Overwritten"})
	if a["en-US"] != "Hello" {
		t.Error("Merge must not mutate the receiver")
	}
}

func TestActivityDefinitionMergeUnionsLanguageMapsAndReplacesScalars(t *testing.T) {
	d := &ActivityDefinition{
		Name: LanguageMap{"en-US": "Algebra"},
		Type: "http://adlnet.gov/expapi/activities/course",
	}
	other := &ActivityDefinition{
		Name:     LanguageMap{"fr-FR": "Algèbre"},
		MoreInfo: "http://example.com/more",
	}
	out := d.Merge(other)
	if len(out.Name) != 2 {
		t.Errorf("expected name to union, got %v", out.Name)
	}
	if out.Type != d.Type {
		t.Errorf("expected type to be preserved when other doesn't set it, got %q", out.Type)
	}
	if out.MoreInfo != other.MoreInfo {
		t.Errorf("expected moreInfo from other, got %q", out.MoreInfo)
	}
}

func TestActivityDefinitionMergeNilHandling(t *testing.T) {
	d := &ActivityDefinition{Type: "x"}
	if got := d.Merge(nil); got != d {
		t.Error("merging with nil other should return d unchanged")
	}
	var nilDef *ActivityDefinition
	if got := nilDef.Merge(d); got != d {
		t.Error("merging nil receiver should return other")
	}
}
