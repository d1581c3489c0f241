// Copyright 2025 Certen Protocol
//
// Package model implements the xAPI 2.0 value model: typed domain
// entities, JSON parsing with boundary validation, language-map and
// ActivityDefinition merge helpers, and canonical-form fingerprinting.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LanguageMap is a JSON object mapping an RFC 5646 language tag to a
// display string. It is always merged (union of keys), never replaced.
type LanguageMap map[string]string

// IFIKind enumerates the four Inverse Functional Identifier kinds.
type IFIKind string

const (
	IFIMbox        IFIKind = "mbox"
	IFIMboxSHA1Sum IFIKind = "mbox_sha1sum"
	IFIOpenID      IFIKind = "openid"
	IFIAccount     IFIKind = "account"
)

// Account is the homePage+name IFI pair used by account-identified Agents.
type Account struct {
	HomePage string `json:"homePage"`
	Name     string `json:"name"`
}

// Actor is either an Agent (individual) or a Group (collection of
// Agents). ObjectType distinguishes the wire encoding; IsGroup mirrors
// it for convenience at the Go call sites.
type Actor struct {
	ObjectType  string   `json:"objectType,omitempty"` // "Agent" | "Group"
	IsGroup     bool     `json:"-"`
	Name        string   `json:"name,omitempty"`
	Mbox        string   `json:"mbox,omitempty"`
	MboxSHA1Sum string   `json:"mbox_sha1sum,omitempty"`
	OpenID      string   `json:"openid,omitempty"`
	Account     *Account `json:"account,omitempty"`
	Member      []Actor  `json:"member,omitempty"` // Group only
}

// Verb is the action component of a Statement, identified by IRI.
type Verb struct {
	ID      string      `json:"id"`
	Display LanguageMap `json:"display,omitempty"`
}

// InteractionComponent is one entry of an interaction Activity's
// choices/scale/source/target/steps array.
type InteractionComponent struct {
	ID          string      `json:"id"`
	Description LanguageMap `json:"description,omitempty"`
}

// ActivityDefinition describes an Activity's interaction shape and
// display metadata. Name/Description/MoreInfo/Extensions are
// display-only and excluded from fingerprinting.
type ActivityDefinition struct {
	Name                   LanguageMap             `json:"name,omitempty"`
	Description            LanguageMap             `json:"description,omitempty"`
	Type                   string                  `json:"type,omitempty"`
	MoreInfo               string                  `json:"moreInfo,omitempty"`
	InteractionType        string                  `json:"interactionType,omitempty"`
	CorrectResponsesPattern []string               `json:"correctResponsesPattern,omitempty"`
	Choices                []InteractionComponent  `json:"choices,omitempty"`
	Scale                  []InteractionComponent  `json:"scale,omitempty"`
	Source                 []InteractionComponent  `json:"source,omitempty"`
	Target                 []InteractionComponent  `json:"target,omitempty"`
	Steps                  []InteractionComponent  `json:"steps,omitempty"`
	Extensions             map[string]any          `json:"extensions,omitempty"`
}

// Activity is a thing acted upon, identified by IRI.
type Activity struct {
	ObjectType string               `json:"objectType,omitempty"` // "Activity"
	ID         string               `json:"id"`
	Definition *ActivityDefinition  `json:"definition,omitempty"`
}

// StatementRef is a typed reference to another Statement by UUID.
type StatementRef struct {
	ObjectType string    `json:"objectType"` // "StatementRef"
	ID         uuid.UUID `json:"id"`
}

// Attachment is attachment metadata plus an optional reference to
// content-addressed binary payload (keyed by SHA2 in pkg/store).
type Attachment struct {
	UsageType   string      `json:"usageType"`
	Display     LanguageMap `json:"display"`
	Description LanguageMap `json:"description,omitempty"`
	ContentType string      `json:"contentType"`
	Length      int64       `json:"length"`
	SHA2        string      `json:"sha2"`
	FileURL     string      `json:"fileUrl,omitempty"`
}

// SignatureUsageType is the attachment usageType IRI for a JWS signature.
const SignatureUsageType = "http://adlnet.gov/expapi/attachments/signature"

// VoidingVerbID is the Verb IRI that marks a Statement as a voiding Statement.
const VoidingVerbID = "http://adlnet.gov/expapi/verbs/voided"

// Score holds the four optional numeric fields of a Result.
type Score struct {
	Scaled *float64 `json:"scaled,omitempty"`
	Raw    *float64 `json:"raw,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// Result is the outcome of a Statement's Verb applied to its Object.
type Result struct {
	Score      *Score         `json:"score,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	Completion *bool          `json:"completion,omitempty"`
	Response   string         `json:"response,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// ContextActivities groups related Activities by role.
type ContextActivities struct {
	Parent   []Activity `json:"parent,omitempty"`
	Grouping []Activity `json:"grouping,omitempty"`
	Category []Activity `json:"category,omitempty"`
	Other    []Activity `json:"other,omitempty"`
}

// ContextAgent pairs an Actor with the relevant-types IRIs describing
// its role within the Context.
type ContextAgent struct {
	ObjectType    string   `json:"objectType"` // "contextAgent"
	Agent         Actor    `json:"agent"`
	RelevantTypes []string `json:"relevantTypes,omitempty"`
}

// ContextGroup pairs a Group Actor with its relevant-types IRIs.
type ContextGroup struct {
	ObjectType    string   `json:"objectType"` // "contextGroup"
	Group         Actor    `json:"group"`
	RelevantTypes []string `json:"relevantTypes,omitempty"`
}

// Context carries the circumstantial metadata of a Statement.
type Context struct {
	Registration      *uuid.UUID         `json:"registration,omitempty"`
	Instructor        *Actor             `json:"instructor,omitempty"`
	Team              *Actor             `json:"team,omitempty"`
	ContextActivities *ContextActivities `json:"contextActivities,omitempty"`
	ContextAgents     []ContextAgent     `json:"contextAgents,omitempty"`
	ContextGroups     []ContextGroup     `json:"contextGroups,omitempty"`
	Revision          string             `json:"revision,omitempty"`
	Platform          string             `json:"platform,omitempty"`
	Language          string             `json:"language,omitempty"`
	Statement         *StatementRef      `json:"statement,omitempty"`
	Extensions        map[string]any     `json:"extensions,omitempty"`
}

// ObjectKind tags the five Statement.Object variants. Persisted as an
// integer column in pkg/store; dispatch on it rather than inheritance.
type ObjectKind int

const (
	ObjectActivity ObjectKind = iota
	ObjectAgent
	ObjectGroup
	ObjectStatementRef
	ObjectSubStatement
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectActivity:
		return "Activity"
	case ObjectAgent:
		return "Agent"
	case ObjectGroup:
		return "Group"
	case ObjectStatementRef:
		return "StatementRef"
	case ObjectSubStatement:
		return "SubStatement"
	default:
		return "Unknown"
	}
}

// StatementObject is the polymorphic Object of a Statement or
// SubStatement: exactly one of the typed fields matching Kind is set.
type StatementObject struct {
	Kind         ObjectKind
	Activity     *Activity
	Actor        *Actor // Agent or Group, discriminated by Actor.IsGroup
	StatementRef *StatementRef
	SubStatement *SubStatement
}

// SubStatement is a Statement-shaped Object embedded within another
// Statement. It may not itself contain a SubStatement, and has no
// id/stored/authority/voided fields.
type SubStatement struct {
	ObjectType  string           `json:"objectType"` // "SubStatement"
	Actor       Actor            `json:"actor"`
	Verb        Verb             `json:"verb"`
	Object      StatementObject  `json:"object"`
	Result      *Result          `json:"result,omitempty"`
	Context     *Context         `json:"context,omitempty"`
	Timestamp   *time.Time       `json:"timestamp,omitempty"`
	Attachments []Attachment     `json:"attachments,omitempty"`
}

// Statement is the immutable unit of record: Actor-Verb-Object with
// optional Result/Context.
type Statement struct {
	ID          uuid.UUID       `json:"id"`
	Actor       Actor           `json:"actor"`
	Verb        Verb            `json:"verb"`
	Object      StatementObject `json:"object"`
	Result      *Result         `json:"result,omitempty"`
	Context     *Context        `json:"context,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Stored      time.Time       `json:"stored"`
	Authority   *Actor          `json:"authority,omitempty"`
	Version     string          `json:"version,omitempty"`
	Voided      bool            `json:"-"`
	Attachments []Attachment    `json:"attachments,omitempty"`

	// Raw is the opaque exact-serialization blob as received, used to
	// answer format=exact queries verbatim and to recompute fingerprints
	// without relying on Go struct round-tripping.
	Raw json.RawMessage `json:"-"`
}

// Person is the persona-union aggregate produced by Actor Resolver's
// find_person walk: the union of names and IFIs reachable from a seed Agent.
type Person struct {
	Names         []string  `json:"name,omitempty"`
	Mboxes        []string  `json:"mbox,omitempty"`
	MboxSHA1Sums  []string  `json:"mbox_sha1sum,omitempty"`
	OpenIDs       []string  `json:"openid,omitempty"`
	Accounts      []Account `json:"account,omitempty"`
}

// ValidationError reports a violation of an xAPI syntactic or semantic
// constraint found while parsing or validating a value.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
