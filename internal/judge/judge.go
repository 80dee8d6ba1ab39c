// Package judge converts an exercise test report into the per-exercise point
// tally used by classroom autograding.
//
// A report looks like:
//
//	{"exercises": [{"name": "variables1", "result": true}, ...]}
//
// and judges to:
//
//	{"variables1": [1, 1], ...}
package judge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

var (
	ErrMalformedReport  = errors.New("report is not valid JSON")
	ErrMissingExercises = errors.New("report has no exercises array")
	ErrInvalidRecord    = errors.New("exercise record is null")
)

// Score is a points tuple: earned out of possible.
type Score [2]int

var (
	Pass = Score{1, 1}
	Fail = Score{0, 1}
)

func (s Score) Earned() int   { return s[0] }
func (s Score) Possible() int { return s[1] }

// Points maps an exercise name to its score.
type Points map[string]Score

// Total sums earned and possible points across all exercises.
func (p Points) Total() Score {
	var t Score
	for _, s := range p {
		t[0] += s[0]
		t[1] += s[1]
	}
	return t
}

// Passed returns the sorted names of exercises that earned their point.
func (p Points) Passed() []string { return p.names(true) }

// Failed returns the sorted names of exercises that did not.
func (p Points) Failed() []string { return p.names(false) }

func (p Points) names(passed bool) []string {
	out := make([]string, 0, len(p))
	for name, s := range p {
		if (s.Earned() == s.Possible()) == passed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Exercise is one record of a report as written by a producer.
type Exercise struct {
	Name   string `json:"name"`
	Result bool   `json:"result"`
}

// Report is the input document shape.
type Report struct {
	Exercises []Exercise `json:"exercises"`
}

// Judge scores raw report text. It never fails: anything that cannot be
// judged yields an empty, non-nil Points.
func Judge(raw string) Points {
	points, err := Parse([]byte(raw))
	if err != nil {
		return Points{}
	}
	return points
}

// Parse is the strict form of Judge. On error the returned Points is nil and
// the error matches one of ErrMalformedReport, ErrMissingExercises or
// ErrInvalidRecord.
func Parse(raw []byte) (Points, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %s", ErrMissingExercises, kind(doc))
	}
	exercises, ok := obj["exercises"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: exercises is %s", ErrMissingExercises, kind(obj["exercises"]))
	}

	points := make(Points, len(exercises))
	for i, rec := range exercises {
		if rec == nil {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidRecord, i)
		}
		// scalars and arrays have no fields, same as a record missing both
		fields, _ := rec.(map[string]any)

		name, hasName := fields["name"]
		result := fields["result"]

		key := undefinedKey
		if hasName {
			key = keyOf(name)
		}
		// assigning to __proto__ never creates an own property
		if key == protoKey {
			continue
		}
		if truthy(result) {
			points[key] = Pass
		} else {
			points[key] = Fail
		}
	}
	return points, nil
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after top-level value")
	}
	return v, nil
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null or missing"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
