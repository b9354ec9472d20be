package opportunity

import (
	"strings"

	"connectkids/internal/model"
)

// RequiredFieldsMessage is the prompt shown when a required field is blank.
const RequiredFieldsMessage = "Please complete all required fields"

// FieldErrors marks which form fields failed validation.
type FieldErrors struct {
	Title       bool
	AgeRange    bool
	Interest    bool
	Description bool
	Link        bool
}

// Any reports whether at least one field failed.
func (e FieldErrors) Any() bool {
	return e.Title || e.AgeRange || e.Interest || e.Description || e.Link
}

// ValidationError is returned by Submit when the draft cannot be sent.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	if e.Fields.AgeRange || e.Fields.Interest {
		if !e.Fields.Title && !e.Fields.Description && !e.Fields.Link {
			return "Please choose a valid age range and category"
		}
	}
	return RequiredFieldsMessage
}

// Validate checks the required fields after trimming and the two
// enumerated selects.
func Validate(d model.Draft) FieldErrors {
	return FieldErrors{
		Title:       strings.TrimSpace(d.Title) == "",
		AgeRange:    !d.AgeRange.Valid(),
		Interest:    !d.Interest.Valid(),
		Description: strings.TrimSpace(d.Description) == "",
		Link:        strings.TrimSpace(d.Link) == "",
	}
}
