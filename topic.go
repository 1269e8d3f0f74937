package mqttv5client

import (
	"errors"
	"strings"
)

// ErrInvalidTopic is returned when a topic name or topic filter is rejected.
var ErrInvalidTopic = errors.New("invalid topic")

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
	sharePrefix         = "$share"
)

// TopicValidation is the outcome of ValidateTopic.
type TopicValidation struct {
	IsValid     bool
	IsShared    bool
	HasWildcard bool
}

// ValidateTopic checks a topic name (isFilter false) or a topic filter
// (isFilter true) against the MQTT v5 grammar.
//
// Segments are checked left to right and the first bad one ends the scan. A
// wildcard must fill its whole segment, '#' only as the last one, and plain
// topic names accept no wildcard at all. Empty segments are allowed, the empty
// string is not.
func ValidateTopic(topic string, isFilter bool) TopicValidation {
	var v TopicValidation
	if topic == "" || len(topic) > maxUint16 {
		return v
	}

	segments := strings.Split(topic, topicSeparator)
	for i, seg := range segments {
		if !strings.ContainsAny(seg, singleLevelWildcard+multiLevelWildcard) {
			continue
		}
		if !isFilter || len(seg) != 1 {
			return TopicValidation{}
		}
		if seg == multiLevelWildcard && i != len(segments)-1 {
			return TopicValidation{}
		}
		v.HasWildcard = true
	}

	v.IsValid = true
	v.IsShared = isSharedSegments(segments)
	return v
}

// isSharedSegments reports whether segments form $share/<name>/<filter>.
func isSharedSegments(segments []string) bool {
	if len(segments) < 3 || segments[0] != sharePrefix {
		return false
	}
	name := segments[1]
	if name == "" || strings.ContainsAny(name, singleLevelWildcard+multiLevelWildcard) {
		return false
	}
	return segments[2] != "" || len(segments) > 3
}

// SharedSubscription is a parsed $share filter.
type SharedSubscription struct {
	ShareName   string
	TopicFilter string
}

// ParseSharedSubscription splits a shared filter into its group and filter.
// It returns nil for filters that are not shared.
func ParseSharedSubscription(filter string) *SharedSubscription {
	if !ValidateTopic(filter, true).IsShared {
		return nil
	}
	rest := strings.TrimPrefix(filter, sharePrefix+topicSeparator)
	name, inner, _ := strings.Cut(rest, topicSeparator)
	return &SharedSubscription{ShareName: name, TopicFilter: inner}
}

// TopicMatch reports whether topic is matched by filter. Shared filters match
// on their inner filter. Topics starting with '$' never match a filter whose
// first segment is a wildcard.
func TopicMatch(filter, topic string) bool {
	if !ValidateTopic(topic, false).IsValid {
		return false
	}
	if shared := ParseSharedSubscription(filter); shared != nil {
		filter = shared.TopicFilter
	}
	if !ValidateTopic(filter, true).IsValid {
		return false
	}
	if strings.HasPrefix(topic, "$") &&
		(strings.HasPrefix(filter, singleLevelWildcard) || strings.HasPrefix(filter, multiLevelWildcard)) {
		return false
	}

	for {
		fseg, frest, fmore := strings.Cut(filter, topicSeparator)
		tseg, trest, tmore := strings.Cut(topic, topicSeparator)

		switch {
		case fseg == multiLevelWildcard:
			return true
		case fseg != singleLevelWildcard && fseg != tseg:
			return false
		}

		switch {
		case !fmore && !tmore:
			return true
		case !tmore:
			// "a/#" also matches "a".
			return frest == multiLevelWildcard
		case !fmore:
			return false
		}
		filter, topic = frest, trest
	}
}
