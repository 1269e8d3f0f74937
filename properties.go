package mqttv5client

// PropertyID represents an MQTT v5.0 property identifier.
type PropertyID byte

// Property identifiers.
const (
	PropPayloadFormatIndicator   PropertyID = 0x01
	PropMessageExpiryInterval    PropertyID = 0x02
	PropContentType              PropertyID = 0x03
	PropResponseTopic            PropertyID = 0x08
	PropCorrelationData          PropertyID = 0x09
	PropSubscriptionIdentifier   PropertyID = 0x0B
	PropSessionExpiryInterval    PropertyID = 0x11
	PropAssignedClientIdentifier PropertyID = 0x12
	PropServerKeepAlive          PropertyID = 0x13
	PropAuthenticationMethod     PropertyID = 0x15
	PropAuthenticationData       PropertyID = 0x16
	PropRequestProblemInfo       PropertyID = 0x17
	PropWillDelayInterval        PropertyID = 0x18
	PropRequestResponseInfo      PropertyID = 0x19
	PropResponseInformation      PropertyID = 0x1A
	PropServerReference          PropertyID = 0x1C
	PropReasonString             PropertyID = 0x1F
	PropReceiveMaximum           PropertyID = 0x21
	PropTopicAliasMaximum        PropertyID = 0x22
	PropTopicAlias               PropertyID = 0x23
	PropMaximumQoS               PropertyID = 0x24
	PropRetainAvailable          PropertyID = 0x25
	PropUserProperty             PropertyID = 0x26
	PropMaximumPacketSize        PropertyID = 0x27
	PropWildcardSubAvailable     PropertyID = 0x28
	PropSubscriptionIDAvailable  PropertyID = 0x29
	PropSharedSubAvailable       PropertyID = 0x2A
)

// UserProperty is a name/value pair attached to a packet.
type UserProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Ptr returns a pointer to v. It is a convenience for filling optional packet fields.
func Ptr[T any](v T) *T {
	return &v
}

// propertyWriter collects the property section of a packet.
type propertyWriter struct {
	e encoder
}

func (w *propertyWriter) byteProp(id PropertyID, v byte) {
	w.e.byte(byte(id))
	w.e.byte(v)
}

func (w *propertyWriter) optBool(id PropertyID, v *bool) {
	if v != nil {
		w.e.byte(byte(id))
		w.e.bool(*v)
	}
}

func (w *propertyWriter) optUint16(id PropertyID, v *uint16) {
	if v != nil {
		w.e.byte(byte(id))
		w.e.uint16(*v)
	}
}

func (w *propertyWriter) optUint32(id PropertyID, v *uint32) {
	if v != nil {
		w.e.byte(byte(id))
		w.e.uint32(*v)
	}
}

func (w *propertyWriter) varintProp(id PropertyID, v uint32) {
	w.e.byte(byte(id))
	w.e.varint(v)
}

func (w *propertyWriter) optString(id PropertyID, v *string) {
	if v != nil {
		w.e.byte(byte(id))
		w.e.string(*v)
	}
}

func (w *propertyWriter) optBinary(id PropertyID, v []byte) {
	if v != nil {
		w.e.byte(byte(id))
		w.e.binary(v)
	}
}

func (w *propertyWriter) userProperties(props []UserProperty) {
	for _, up := range props {
		w.e.byte(byte(PropUserProperty))
		w.e.string(up.Name)
		w.e.string(up.Value)
	}
}

// properties writes the collected section, prefixed by its length, into e.
func (e *encoder) properties(w *propertyWriter) {
	if w.e.err != nil {
		if e.err == nil {
			e.err = w.e.err
		}
		return
	}
	e.varint(uint32(len(w.e.buf)))
	e.raw(w.e.buf)
}

// repeatable lists the properties that may occur more than once in a packet.
var repeatable = map[PropertyID]bool{
	PropUserProperty:           true,
	PropSubscriptionIdentifier: true,
}

// properties reads a property section and hands each identifier to fn, which
// consumes the value from pd. fn returns false for identifiers not allowed in
// the packet being decoded.
func (d *decoder) properties(fn func(id PropertyID, pd *decoder) bool) {
	length := d.varint()
	section := d.take(int(length))
	if d.err != nil {
		return
	}

	pd := newDecoder(section)
	seen := make(map[PropertyID]bool)
	for pd.err == nil && pd.remaining() > 0 {
		id := PropertyID(pd.varint())
		if pd.err != nil {
			break
		}
		if seen[id] && !repeatable[id] {
			pd.fail("duplicate property 0x%02x", byte(id))
			break
		}
		seen[id] = true
		if !fn(id, pd) {
			pd.fail("property 0x%02x not allowed", byte(id))
		}
	}
	if pd.err != nil && d.err == nil {
		d.err = pd.err
	}
}

func (d *decoder) userProperty() UserProperty {
	return UserProperty{Name: d.string(), Value: d.string()}
}
