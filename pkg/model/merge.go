// Copyright 2025 Certen Protocol
package model

// Merge unions two language maps, keys from other overwriting m's keys
// on conflict: never replace, always union keys, last write wins on
// collision. The receiver is never mutated; a new map is returned so
// storage code can treat LanguageMap values as immutable.
func (m LanguageMap) Merge(other LanguageMap) LanguageMap {
	if len(m) == 0 && len(other) == 0 {
		return nil
	}
	out := make(LanguageMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Merge unions two ActivityDefinitions field-by-field: language maps
// union with latest-wins; scalar fields (type/moreInfo/interactionType)
// and interaction component arrays are replaced wholesale by other when
// other sets them, since xAPI does not define a finer merge for them.
func (d *ActivityDefinition) Merge(other *ActivityDefinition) *ActivityDefinition {
	if d == nil {
		return other
	}
	if other == nil {
		return d
	}
	out := &ActivityDefinition{
		Name:        d.Name.Merge(other.Name),
		Description: d.Description.Merge(other.Description),
		Type:        d.Type,
		MoreInfo:    d.MoreInfo,
		InteractionType:         d.InteractionType,
		CorrectResponsesPattern: d.CorrectResponsesPattern,
		Choices:                 d.Choices,
		Scale:                   d.Scale,
		Source:                  d.Source,
		Target:                  d.Target,
		Steps:                   d.Steps,
		Extensions:              mergeExtensions(d.Extensions, other.Extensions),
	}
	if other.Type != "" {
		out.Type = other.Type
	}
	if other.MoreInfo != "" {
		out.MoreInfo = other.MoreInfo
	}
	if other.InteractionType != "" {
		out.InteractionType = other.InteractionType
	}
	if len(other.CorrectResponsesPattern) > 0 {
		out.CorrectResponsesPattern = other.CorrectResponsesPattern
	}
	if len(other.Choices) > 0 {
		out.Choices = other.Choices
	}
	if len(other.Scale) > 0 {
		out.Scale = other.Scale
	}
	if len(other.Source) > 0 {
		out.Source = other.Source
	}
	if len(other.Target) > 0 {
		out.Target = other.Target
	}
	if len(other.Steps) > 0 {
		out.Steps = other.Steps
	}
	return out
}

func mergeExtensions(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
