// Package envelope defines the wire format carried between ingestion
// processes and the router: a source tag, a receipt timestamp, and the raw
// message bytes, encoded as a protobuf message.
package envelope

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Source identifies which feed produced a message
type Source int32

const (
	SourceOgn   Source = 0
	SourceBeast Source = 1
	SourceSbs   Source = 2
)

// String returns the feed name for logging and metrics labels
func (s Source) String() string {
	switch s {
	case SourceOgn:
		return "ogn"
	case SourceBeast:
		return "beast"
	case SourceSbs:
		return "sbs"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// MaxMessageSize is the largest payload the transport will accept (1 MiB)
const MaxMessageSize = 1024 * 1024

// Envelope wraps one raw feed message. It is created once per inbound
// message and timestamped at receipt, not at forwarding, so queueing delay
// does not corrupt downstream lag measurements.
type Envelope struct {
	Source          Source
	TimestampMicros int64
	Data            []byte
}

// New creates an envelope stamped with the current time
func New(source Source, data []byte) *Envelope {
	return &Envelope{
		Source:          source,
		TimestampMicros: time.Now().UnixMicro(),
		Data:            data,
	}
}

// Timestamp returns the receipt time carried by the envelope
func (e *Envelope) Timestamp() time.Time {
	return time.UnixMicro(e.TimestampMicros).UTC()
}

// Protobuf field numbers. These match the schema the router has always
// spoken, so envelopes stay wire-compatible across process versions.
const (
	fieldSource    = 1
	fieldTimestamp = 2
	fieldData      = 3
)

// Marshal encodes the envelope to protobuf wire format
func (e *Envelope) Marshal() []byte {
	buf := make([]byte, 0, len(e.Data)+24)
	if e.Source != 0 {
		buf = protowire.AppendTag(buf, fieldSource, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(e.Source))
	}
	if e.TimestampMicros != 0 {
		buf = protowire.AppendTag(buf, fieldTimestamp, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(e.TimestampMicros))
	}
	if len(e.Data) > 0 {
		buf = protowire.AppendTag(buf, fieldData, protowire.BytesType)
		buf = protowire.AppendBytes(buf, e.Data)
	}
	return buf
}

// Unmarshal decodes an envelope from protobuf wire format
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("failed to decode envelope: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldSource && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode source: %w", protowire.ParseError(n))
			}
			e.Source = Source(v)
			data = data[n:]
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode timestamp: %w", protowire.ParseError(n))
			}
			e.TimestampMicros = int64(v)
			data = data[n:]
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode data: %w", protowire.ParseError(n))
			}
			e.Data = append([]byte(nil), v...)
			data = data[n:]
		default:
			// Unknown field: skip it so newer producers stay compatible
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("failed to skip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return &e, nil
}
