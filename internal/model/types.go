// Package model holds the records exchanged with the data service and the
// form draft the CreateOpportunity page edits.
package model

import (
	"time"
)

// Role classifies an account. An empty role means the profile is incomplete.
type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleParent    Role = "parent"
)

// Roles lists the roles a user may pick when completing a profile.
var Roles = []Option{
	{Value: string(RoleParent), Label: "Parent / Guardian"},
	{Value: string(RoleOrganizer), Label: "Organizer"},
}

// ValidRole reports whether r is one of the selectable roles.
func ValidRole(r Role) bool {
	return r == RoleOrganizer || r == RoleParent
}

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"user_type,omitempty"`
}

// ProfileUpdate is the subset of user fields the profile page may change.
type ProfileUpdate struct {
	Role Role `json:"user_type"`
}

type AgeRange string

const (
	Age6to8   AgeRange = "6-8"
	Age9to11  AgeRange = "9-11"
	Age12to14 AgeRange = "12-14"
	Age15to18 AgeRange = "15-18"
)

type Interest string

const (
	InterestArts   Interest = "arts"
	InterestMusic  Interest = "music"
	InterestSTEM   Interest = "stem"
	InterestSports Interest = "sports"
	InterestCoding Interest = "coding"
)

// Option is a value/label pair rendered as a select option.
type Option struct {
	Value string
	Label string
}

var AgeRanges = []Option{
	{Value: string(Age6to8), Label: "6-8 years"},
	{Value: string(Age9to11), Label: "9-11 years"},
	{Value: string(Age12to14), Label: "12-14 years"},
	{Value: string(Age15to18), Label: "15-18 years"},
}

var Interests = []Option{
	{Value: string(InterestArts), Label: "Arts & Crafts"},
	{Value: string(InterestMusic), Label: "Music"},
	{Value: string(InterestSTEM), Label: "STEM"},
	{Value: string(InterestSports), Label: "Sports & Fitness"},
	{Value: string(InterestCoding), Label: "Coding"},
}

func (a AgeRange) Valid() bool { return hasOption(AgeRanges, string(a)) }

func (i Interest) Valid() bool { return hasOption(Interests, string(i)) }

// Label returns the display label for the category, or the raw value.
func (i Interest) Label() string { return optionLabel(Interests, string(i)) }

// Label returns the display label for the age bracket, or the raw value.
func (a AgeRange) Label() string { return optionLabel(AgeRanges, string(a)) }

func hasOption(options []Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}

func optionLabel(options []Option, value string) string {
	for _, o := range options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// Draft is the in-progress opportunity listing. Field names on the wire
// match the data service's Opportunity entity.
type Draft struct {
	Title        string   `json:"title"`
	AgeRange     AgeRange `json:"age_range"`
	Interest     Interest `json:"interest"`
	Description  string   `json:"description"`
	Link         string   `json:"link"`
	Organization string   `json:"organization"`
}

// NewDraft returns a draft with the form defaults.
func NewDraft() Draft {
	return Draft{
		AgeRange: Age9to11,
		Interest: InterestCoding,
	}
}

// Opportunity is a stored listing.
type Opportunity struct {
	Draft
	ID          string    `json:"id"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedDate time.Time `json:"created_date"`
}
