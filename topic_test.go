package mqttv5client

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		valid bool
	}{
		{"simple", "test", true},
		{"multiple levels", "a/b/c/d", true},
		{"leading slash", "/test", true},
		{"trailing slash", "test/", true},
		{"single slash", "/", true},
		{"dollar topic", "$SYS/broker/uptime", true},
		{"empty", "", false},
		{"single wildcard", "test/+/topic", false},
		{"multi wildcard", "test/#", false},
		{"wildcard inside segment", "te+st", false},
		{"too long", strings.Repeat("a", maxUint16+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateTopic(tt.topic, false)
			assert.Equal(t, tt.valid, v.IsValid)
			assert.False(t, v.HasWildcard)
		})
	}
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   string
		valid    bool
		wildcard bool
	}{
		{"simple", "test/topic", true, false},
		{"single wildcard", "+", true, true},
		{"single wildcard in middle", "test/+/topic", true, true},
		{"multi wildcard", "#", true, true},
		{"multi wildcard at end", "sport/tennis/#", true, true},
		{"combined", "+/test/#", true, true},
		{"empty segments", "a//b", true, false},
		{"empty", "", false, false},
		{"plus not alone", "test+", false, false},
		{"hash not alone", "test#", false, false},
		{"hash not last", "#/test", false, false},
		{"hash in middle", "sport/basketball/#/ranking", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateTopic(tt.filter, true)
			assert.Equal(t, tt.valid, v.IsValid)
			assert.Equal(t, tt.wildcard, v.HasWildcard)
		})
	}
}

func TestValidateTopicShared(t *testing.T) {
	tests := []struct {
		filter string
		shared bool
	}{
		{"$share/a/b", true},
		{"$share/group/sensors/#", true},
		{"$share/group/+", true},
		{"$share/a", false},
		{"$share//b", false},
		{"$share/a+/b", false},
		{"share/a/b", false},
		{"a/$share/b", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			assert.Equal(t, tt.shared, ValidateTopic(tt.filter, true).IsShared)
		})
	}
}

// Any non-empty topic without wildcard characters is a valid name.
func TestValidateTopicNameProperty(t *testing.T) {
	const alphabet = "ab/$+# "
	r := rand.New(rand.NewPCG(1, 2))

	for range 1000 {
		b := make([]byte, r.IntN(12))
		for i := range b {
			b[i] = alphabet[r.IntN(len(alphabet))]
		}
		topic := string(b)

		want := topic != "" && !strings.ContainsAny(topic, "+#")
		assert.Equal(t, want, ValidateTopic(topic, false).IsValid, "topic %q", topic)
	}
}

func TestParseSharedSubscription(t *testing.T) {
	s := ParseSharedSubscription("$share/workers/jobs/+/new")
	if assert.NotNil(t, s) {
		assert.Equal(t, "workers", s.ShareName)
		assert.Equal(t, "jobs/+/new", s.TopicFilter)
	}

	assert.Nil(t, ParseSharedSubscription("jobs/+/new"))
	assert.Nil(t, ParseSharedSubscription("$share/workers"))
}

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		match  bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/+/c", "a/b/c", true},
		{"+/+", "/finance", true},
		{"+", "/finance", false},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"#", "a/b", true},
		{"#", "$SYS/uptime", false},
		{"+/uptime", "$SYS/uptime", false},
		{"$SYS/#", "$SYS/uptime", true},
		{"$share/g/a/+", "a/b", true},
		{"a/b", "a/+", false},
		{"a/#/c", "a/b/c", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.match, TopicMatch(tt.filter, tt.topic))
		})
	}
}
