package service

import (
	"fmt"
	"strconv"
	"strings"
)

// Purchase target kinds. A target is "course:<id>" or "tier:<name>".
const (
	TargetKindCourse = "course"
	TargetKindTier   = "tier"
)

// Target is a parsed purchase target.
type Target struct {
	Kind     string
	CourseID int64
	Tier     string
}

// ParseTarget validates and splits a raw purchase target.
func ParseTarget(raw string) (Target, error) {
	kind, value, found := strings.Cut(raw, ":")
	if !found || value == "" {
		return Target{}, fmt.Errorf("invalid purchase target %q", raw)
	}

	switch kind {
	case TargetKindCourse:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return Target{}, fmt.Errorf("invalid course id in target %q", raw)
		}
		return Target{Kind: TargetKindCourse, CourseID: id}, nil
	case TargetKindTier:
		return Target{Kind: TargetKindTier, Tier: value}, nil
	default:
		return Target{}, fmt.Errorf("unknown target kind %q", kind)
	}
}
