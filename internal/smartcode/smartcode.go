// Package smartcode validates the dotted HERA classification strings carried by
// every row of the universal schema.
//
// Grammar: HERA.<MODULE>.<SEGMENT>{3,8}.V<digits>, 6 to 10 segments in total.
// MODULE is [A-Z0-9_]{3,15}, every other middle segment is [A-Z0-9_]{2,30}.
// A lowercase version marker is accepted and normalized to "V".
package smartcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	Prefix = "HERA"

	MinSegments = 6
	MaxSegments = 10

	moduleMinLen  = 3
	moduleMaxLen  = 15
	segmentMinLen = 2
	segmentMaxLen = 30
)

// Rule names the grammar rule a code violated.
type Rule string

const (
	RuleEmpty        Rule = "EMPTY"
	RulePrefix       Rule = "PREFIX"
	RuleSegmentCount Rule = "SEGMENT_COUNT"
	RuleModule       Rule = "MODULE_SEGMENT"
	RuleSegment      Rule = "SEGMENT"
	RuleVersion      Rule = "VERSION"
)

var ErrInvalid = errors.New("smart_code_invalid")

type Violation struct {
	Rule    Rule   `json:"rule"`
	Segment int    `json:"segment,omitempty"`
	Message string `json:"message"`
}

type Result struct {
	Valid      bool        `json:"valid"`
	Normalized string      `json:"normalized,omitempty"`
	Errors     []Violation `json:"errors"`
}

// Error is returned by Check. errors.Is(err, ErrInvalid) holds for it.
type Error struct {
	Code       string
	Field      string
	Violations []Violation
}

func (e *Error) Error() string {
	if e == nil {
		return ErrInvalid.Error()
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, string(v.Rule))
	}
	msg := ErrInvalid.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if len(parts) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, ","))
	}
	return msg
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Validate checks code against the grammar and reports every violated rule.
func Validate(code string) Result {
	res := Result{Errors: []Violation{}}
	code = strings.TrimSpace(code)
	if code == "" {
		res.Errors = append(res.Errors, Violation{Rule: RuleEmpty, Message: "smart code is required"})
		return res
	}

	segments := strings.Split(code, ".")
	if segments[0] != Prefix {
		res.Errors = append(res.Errors, Violation{
			Rule:    RulePrefix,
			Segment: 1,
			Message: fmt.Sprintf("must start with %q", Prefix+"."),
		})
	}

	if n := len(segments); n < MinSegments || n > MaxSegments {
		res.Errors = append(res.Errors, Violation{
			Rule:    RuleSegmentCount,
			Message: fmt.Sprintf("expected %d-%d segments, got %d", MinSegments, MaxSegments, n),
		})
	}

	last := len(segments) - 1
	for i := 1; i < last; i++ {
		seg := segments[i]
		if i == 1 {
			if !validSegment(seg, moduleMinLen, moduleMaxLen) {
				res.Errors = append(res.Errors, Violation{
					Rule:    RuleModule,
					Segment: i + 1,
					Message: fmt.Sprintf("module segment %q must match [A-Z0-9_]{%d,%d}", seg, moduleMinLen, moduleMaxLen),
				})
			}
			continue
		}
		if !validSegment(seg, segmentMinLen, segmentMaxLen) {
			res.Errors = append(res.Errors, Violation{
				Rule:    RuleSegment,
				Segment: i + 1,
				Message: fmt.Sprintf("segment %q must match [A-Z0-9_]{%d,%d}", seg, segmentMinLen, segmentMaxLen),
			})
		}
	}

	version, ok := normalizeVersion(segments[last])
	if last == 0 || !ok {
		res.Errors = append(res.Errors, Violation{
			Rule:    RuleVersion,
			Segment: last + 1,
			Message: fmt.Sprintf("version segment %q must match V<digits>", segments[last]),
		})
	}

	if len(res.Errors) > 0 {
		return res
	}

	segments[last] = version
	res.Valid = true
	res.Normalized = strings.Join(segments, ".")
	return res
}

// Check validates code and returns the normalized form, or an *Error naming field.
func Check(field, code string) (string, error) {
	res := Validate(code)
	if !res.Valid {
		return "", &Error{Code: code, Field: field, Violations: res.Errors}
	}
	return res.Normalized, nil
}

// Violations extracts the violated rules from err, if it is a smart code error.
func Violations(err error) []Violation {
	var scErr *Error
	if errors.As(err, &scErr) && scErr != nil {
		return scErr.Violations
	}
	return nil
}

// Version returns the numeric version carried by a valid code.
func Version(code string) (int, error) {
	normalized, err := Check("smart_code", code)
	if err != nil {
		return 0, err
	}
	idx := strings.LastIndex(normalized, ".")
	return strconv.Atoi(normalized[idx+2:])
}

// WithVersion returns code with its version marker replaced by v.
func WithVersion(code string, v int) (string, error) {
	normalized, err := Check("smart_code", code)
	if err != nil {
		return "", err
	}
	idx := strings.LastIndex(normalized, ".")
	return Check("smart_code", fmt.Sprintf("%s.V%d", normalized[:idx], v))
}

// Segment sanitizes free text into a usable middle segment (A-Z, 0-9, _).
func Segment(value string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(value)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-', r == ' ', r == '.':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > segmentMaxLen {
		out = out[:segmentMaxLen]
	}
	for len(out) < segmentMinLen {
		out += "X"
	}
	return out
}

func validSegment(seg string, minLen, maxLen int) bool {
	if len(seg) < minLen || len(seg) > maxLen {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func normalizeVersion(seg string) (string, bool) {
	if len(seg) < 2 || (seg[0] != 'V' && seg[0] != 'v') {
		return "", false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return "V" + seg[1:], true
}
