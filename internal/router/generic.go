package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ognpipe/ognpipe/internal/decoder"
	"github.com/ognpipe/ognpipe/internal/envelope"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

const receiverCacheSize = 4096

// GenericProcessor runs the bookkeeping that every parsed APRS packet gets
// before routing: archive the raw line, resolve the relaying receiver, and
// insert the raw-message record. The receiver callsign to id mapping is LRU
// cached since the same handful of receivers relay nearly all traffic.
type GenericProcessor struct {
	archive     *Archive
	receivers   ReceiverRepository
	rawMessages RawMessageRepository
	cache       *lru.Cache[string, uuid.UUID]
	log         *logger.Logger
}

// NewGenericProcessor wires the generic stage. archive may be nil to
// disable archival.
func NewGenericProcessor(archive *Archive, receivers ReceiverRepository,
	rawMessages RawMessageRepository, log *logger.Logger) (*GenericProcessor, error) {
	cache, err := lru.New[string, uuid.UUID](receiverCacheSize)
	if err != nil {
		return nil, err
	}
	return &GenericProcessor{
		archive:     archive,
		receivers:   receivers,
		rawMessages: rawMessages,
		cache:       cache,
		log:         log.Named("generic"),
	}, nil
}

// Archive appends one raw line to the daily archive.
func (g *GenericProcessor) Archive(line string) {
	if g.archive != nil {
		g.archive.Write(line)
	}
}

// ProcessPacket runs the generic stage and returns the context for
// specialized processing, or nil if any step failed (fail-closed).
func (g *GenericProcessor) ProcessPacket(ctx context.Context, pkt *decoder.APRSPacket,
	raw string, receivedAt time.Time) *PacketContext {
	g.Archive(raw)

	receiverID, err := g.resolveReceiver(ctx, pkt, receivedAt)
	if err != nil {
		g.log.Warn("Receiver upsert failed, dropping packet",
			logger.String("from", pkt.From),
			logger.Error(err))
		return nil
	}

	msg := &RawMessage{
		ID:         uuid.New(),
		Source:     envelope.SourceOgn,
		Raw:        []byte(raw),
		ReceivedAt: receivedAt,
	}
	if err := g.rawMessages.Insert(ctx, msg); err != nil {
		g.log.Warn("Raw message insert failed, dropping packet",
			logger.String("from", pkt.From),
			logger.Error(err))
		return nil
	}

	return &PacketContext{
		RawMessageID: msg.ID,
		ReceiverID:   receiverID,
		ReceivedAt:   receivedAt,
	}
}

// resolveReceiver identifies and upserts the relaying receiver. A TCPIP*
// hop means the sender spoke to the server directly, so the from callsign
// is the receiver; otherwise the last via hop relayed it.
func (g *GenericProcessor) resolveReceiver(ctx context.Context, pkt *decoder.APRSPacket,
	seenAt time.Time) (uuid.UUID, error) {
	callsign := identifyReceiverCallsign(pkt)

	if isServerCallsign(callsign) {
		g.log.Debug("Receiver callsign matches server pattern",
			logger.String("callsign", callsign),
			logger.String("from", pkt.From))
	}

	if id, ok := g.cache.Get(callsign); ok {
		return id, nil
	}
	id, err := g.receivers.UpsertByCallsign(ctx, callsign, seenAt)
	if err != nil {
		return uuid.Nil, err
	}
	g.cache.Add(callsign, id)
	return id, nil
}

func identifyReceiverCallsign(pkt *decoder.APRSPacket) string {
	for _, hop := range pkt.Via {
		if hop == "TCPIP*" {
			return pkt.From
		}
	}
	if len(pkt.Via) > 0 {
		return pkt.Via[len(pkt.Via)-1]
	}
	return pkt.From
}

// isServerCallsign matches the GLIDERN1-GLIDERN5 network servers, which
// should never appear as a receiving station.
func isServerCallsign(callsign string) bool {
	return len(callsign) == 8 &&
		callsign[:7] == "GLIDERN" &&
		callsign[7] >= '0' && callsign[7] <= '9'
}
