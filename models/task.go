package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Directive is the value of one `@keyword` annotation line. Repeating a
// directive overwrites Latest while All accumulates every occurrence in
// order. This mirrors the annotation format's documented behavior: the most
// recent value wins for the singular form, the plural form keeps the full
// history. All is nil when the directive appeared exactly once.
type Directive struct {
	Latest string   `json:"latest"`
	All    []string `json:"all,omitempty"`
}

// Values returns every occurrence of the directive in order.
func (d Directive) Values() []string {
	if d.All != nil {
		return d.All
	}
	return []string{d.Latest}
}

// Param describes one user-configurable input declared with @param.
type Param struct {
	Name        string `json:"name" validate:"required"`
	Label       string `json:"label" validate:"required"`
	Placeholder string `json:"placeholder,omitempty"`
	Type        string `json:"type"`
	// Options is the literal list expression for select-typed params,
	// e.g. "[1,2,3]". Empty unless Type is "select".
	Options string `json:"options,omitempty"`
}

// TaskDefinition is the immutable output of compiling an annotated script.
type TaskDefinition struct {
	Name    string   `json:"name" validate:"required"`
	Author  string   `json:"author"`
	Domains []string `json:"domains" validate:"required,min=1"`
	Grants  []string `json:"grants,omitempty"`
	Params  []Param  `json:"params,omitempty" validate:"dive"`
	// Freq is the refresh frequency in milliseconds, 0 when absent.
	Freq int64 `json:"freq" validate:"min=0"`
	// Expire is the result expiry in milliseconds.
	Expire int64 `json:"expire" validate:"gt=0"`
	// Code retains the raw source text for re-display and re-compilation.
	Code string `json:"code"`
	// Enable is always false at compile time; activation is an explicit
	// later step through the registry.
	Enable bool `json:"enable"`
	// Extra holds every directive not shaped into a dedicated field above,
	// keyed by directive name.
	Extra map[string]Directive `json:"extra,omitempty"`
}

// Identity returns the author/name composite key identifying the task.
func (d *TaskDefinition) Identity() string {
	return d.Author + "/" + d.Name
}

// LoginURL returns the @loginURL directive value, or "" when not declared.
func (d *TaskDefinition) LoginURL() string {
	return d.Extra["loginURL"].Latest
}

// TaskRuntimeState is the mutable state carried across redefinitions of the
// same task identity. Timestamps are epoch milliseconds, 0 meaning unset.
// At most one of SuccessAt/FailureAt is the more recent non-zero value at
// any time; the execution engine zeroes the older of the two.
type TaskRuntimeState struct {
	OnlineAt  int64   `json:"online_at"`
	RunAt     int64   `json:"run_at"`
	SuccessAt int64   `json:"success_at"`
	FailureAt int64   `json:"failure_at"`
	Result    *Result `json:"result,omitempty"`
	Enable    bool    `json:"enable"`
	// OK counts successful runs, Cnt counts all runs.
	OK  int64 `json:"ok"`
	Cnt int64 `json:"cnt"`
	// Params maps Param names to their current user-supplied values.
	Params map[string]string `json:"_params"`
}

// TaskRecord pairs a definition with its runtime state. Identity is
// author + "/" + name, case-sensitive; the registry holds at most one
// record per identity.
type TaskRecord struct {
	TaskDefinition
	State TaskRuntimeState `json:"state"`
}

// TaskPatch is a partial update applied to a stored record. Nil fields are
// left untouched.
type TaskPatch struct {
	Identity string            `json:"identity"`
	Enable   *bool             `json:"enable,omitempty"`
	Freq     *int64            `json:"freq,omitempty"`
	Expire   *int64            `json:"expire,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	OnlineAt *int64            `json:"online_at,omitempty"`
}

// Result is the normalized outcome of a run, replacing the loose
// string-or-object shape scripts may return.
type Result struct {
	Summary string         `json:"summary"`
	Detail  []ResultDetail `json:"detail"`
}

// ResultDetail is one per-domain line of a normalized result. Errno is true
// when the task is currently in a failed state.
type ResultDetail struct {
	Domain  string `json:"domain"`
	URL     string `json:"url"`
	Message string `json:"message"`
	Errno   bool   `json:"errno"`
}

// global validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStruct performs validation on any struct that has validation tags.
func ValidateStruct(s interface{}) error {
	if validate == nil {
		validate = validator.New()
	}
	err := validate.Struct(s)
	if err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, fmt.Sprintf("Validation failed on field '%s': rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("%s", strings.Join(errorMessages, "; "))
	}
	return nil
}
