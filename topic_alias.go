package mqttv5client

import (
	"errors"
)

var (
	ErrTopicAliasInvalid  = errors.New("topic alias invalid")
	ErrTopicAliasExceeded = errors.New("topic alias maximum exceeded")
	ErrTopicAliasNotFound = errors.New("topic alias not found")
)

// inboundTopicAliases maps aliases set by the server to topic names for one
// connection. The client lock guards it.
type inboundTopicAliases struct {
	aliases map[uint16]string
	max     uint16
}

func newInboundTopicAliases(maxAlias uint16) *inboundTopicAliases {
	return &inboundTopicAliases{
		aliases: make(map[uint16]string),
		max:     maxAlias,
	}
}

// resolve fills in pkt.Topic from its alias, recording the mapping when the
// packet carries both.
func (a *inboundTopicAliases) resolve(pkt *PublishPacket) error {
	if pkt.TopicAlias == nil {
		return nil
	}

	alias := *pkt.TopicAlias
	if alias == 0 {
		return ErrTopicAliasInvalid
	}
	if alias > a.max {
		return ErrTopicAliasExceeded
	}

	if pkt.Topic != "" {
		a.aliases[alias] = pkt.Topic
		return nil
	}

	topic, ok := a.aliases[alias]
	if !ok {
		return ErrTopicAliasNotFound
	}
	pkt.Topic = topic
	return nil
}
