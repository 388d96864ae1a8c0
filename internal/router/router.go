// Package router fans parsed telemetry out to the flight tracker and the
// storage layer. One dispatcher classifies incoming envelopes and pushes
// work onto bounded per-category queues drained by worker pools, so a slow
// consumer sheds load instead of stalling ingestion.
package router

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ognpipe/ognpipe/internal/decoder"
	"github.com/ognpipe/ognpipe/internal/envelope"
	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/internal/tracker"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// Worker counts per category. Aircraft positions dominate traffic by two
// orders of magnitude, hence the lopsided sizing.
const (
	aircraftWorkers         = 80
	receiverStatusWorkers   = 6
	receiverPositionWorkers = 4
	serverStatusWorkers     = 2

	queueDepthInterval = 10 * time.Second
)

// QueueSizes bounds the per-category work queues.
type QueueSizes struct {
	Aircraft         int
	ReceiverStatus   int
	ReceiverPosition int
	ServerStatus     int
}

func DefaultQueueSizes() QueueSizes {
	return QueueSizes{
		Aircraft:         50000,
		ReceiverStatus:   10000,
		ReceiverPosition: 5000,
		ServerStatus:     1000,
	}
}

// FixProcessor consumes aircraft fixes. Satisfied by *tracker.Tracker.
type FixProcessor interface {
	ProcessFix(ctx context.Context, fix *tracker.Fix)
}

type receiverPositionItem struct {
	receiverID uuid.UUID
	latitude   float64
	longitude  float64
	altitudeFt *int
	at         time.Time
}

type receiverStatusItem struct {
	receiverID uuid.UUID
	status     string
	at         time.Time
}

// Router classifies envelopes and drives the worker pools.
type Router struct {
	generic        *GenericProcessor
	fixes          FixProcessor
	receivers      ReceiverRepository
	serverMessages ServerMessageRepository
	rawMessages    RawMessageRepository

	aircraftQueue         chan *tracker.Fix
	receiverPositionQueue chan receiverPositionItem
	receiverStatusQueue   chan receiverStatusItem
	serverStatusQueue     chan *ServerMessage

	log     *logger.Logger
	metrics *metrics.Metrics
}

// New builds a router around the given processor and repositories. Zero or
// negative queue sizes fall back to the defaults.
func New(generic *GenericProcessor, fixes FixProcessor, receivers ReceiverRepository,
	serverMessages ServerMessageRepository, rawMessages RawMessageRepository,
	sizes QueueSizes, log *logger.Logger, m *metrics.Metrics) *Router {
	defaults := DefaultQueueSizes()
	if sizes.Aircraft <= 0 {
		sizes.Aircraft = defaults.Aircraft
	}
	if sizes.ReceiverStatus <= 0 {
		sizes.ReceiverStatus = defaults.ReceiverStatus
	}
	if sizes.ReceiverPosition <= 0 {
		sizes.ReceiverPosition = defaults.ReceiverPosition
	}
	if sizes.ServerStatus <= 0 {
		sizes.ServerStatus = defaults.ServerStatus
	}
	return &Router{
		generic:               generic,
		fixes:                 fixes,
		receivers:             receivers,
		serverMessages:        serverMessages,
		rawMessages:           rawMessages,
		aircraftQueue:         make(chan *tracker.Fix, sizes.Aircraft),
		receiverPositionQueue: make(chan receiverPositionItem, sizes.ReceiverPosition),
		receiverStatusQueue:   make(chan receiverStatusItem, sizes.ReceiverStatus),
		serverStatusQueue:     make(chan *ServerMessage, sizes.ServerStatus),
		log:                   log.Named("router"),
		metrics:               m,
	}
}

// Run starts the worker pools and consumes intake until ctx is cancelled
// and the intake channel is drained. It blocks until every worker exits.
func (r *Router) Run(ctx context.Context, intake <-chan *envelope.Envelope) {
	var wg sync.WaitGroup

	r.startWorkers(ctx, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(queueDepthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.reportQueueDepths()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Drain what the transport already accepted.
			for {
				select {
				case env := <-intake:
					r.Dispatch(ctx, env)
				default:
					r.closeQueues()
					wg.Wait()
					return
				}
			}
		case env := <-intake:
			r.Dispatch(ctx, env)
		}
	}
}

func (r *Router) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	for i := 0; i < aircraftWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fix := range r.aircraftQueue {
				r.fixes.ProcessFix(ctx, fix)
			}
		}()
	}
	for i := 0; i < receiverPositionWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range r.receiverPositionQueue {
				if err := r.receivers.UpdatePosition(ctx, item.receiverID,
					item.latitude, item.longitude, item.altitudeFt, item.at); err != nil {
					r.log.Warn("Receiver position update failed",
						logger.String("receiver_id", item.receiverID.String()),
						logger.Error(err))
				}
			}
		}()
	}
	for i := 0; i < receiverStatusWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range r.receiverStatusQueue {
				if err := r.receivers.UpdateStatus(ctx, item.receiverID, item.status, item.at); err != nil {
					r.log.Warn("Receiver status update failed",
						logger.String("receiver_id", item.receiverID.String()),
						logger.Error(err))
				}
			}
		}()
	}
	for i := 0; i < serverStatusWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range r.serverStatusQueue {
				if err := r.serverMessages.Insert(ctx, msg); err != nil {
					r.log.Warn("Server message insert failed",
						logger.String("server", msg.ServerName),
						logger.Error(err))
				}
			}
		}()
	}
}

func (r *Router) closeQueues() {
	close(r.aircraftQueue)
	close(r.receiverPositionQueue)
	close(r.receiverStatusQueue)
	close(r.serverStatusQueue)
}

// Dispatch classifies one envelope and enqueues the resulting work.
func (r *Router) Dispatch(ctx context.Context, env *envelope.Envelope) {
	switch env.Source {
	case envelope.SourceOgn:
		r.dispatchOGN(ctx, string(env.Data), env.Timestamp())
	case envelope.SourceBeast:
		r.dispatchBeast(ctx, env.Data, env.Timestamp())
	case envelope.SourceSbs:
		r.dispatchSBS(ctx, string(env.Data), env.Timestamp())
	default:
		r.log.Warn("Envelope with unknown source", logger.Int("source", int(env.Source)))
		r.metrics.GenericFailures.Inc()
	}
}

func (r *Router) dispatchOGN(ctx context.Context, line string, receivedAt time.Time) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}

	// Server chatter never enters the generic stage: no receiver, no
	// raw-message record, just the archive and the heartbeat parse.
	if strings.HasPrefix(line, "#") {
		r.generic.Archive(line)
		r.handleServerLine(line, receivedAt)
		return
	}

	pkt, err := decoder.ParseAPRS(line)
	if err != nil {
		r.generic.Archive(line)
		r.metrics.ParseFailures.WithLabelValues("ogn").Inc()
		if decoder.IsBenignAPRSParseError(line, err) {
			r.log.Debug("Skipping unsupported packet", logger.String("line", line), logger.Error(err))
		} else {
			r.log.Info("APRS parse failed", logger.String("line", line), logger.Error(err))
		}
		return
	}

	pc := r.generic.ProcessPacket(ctx, pkt, line, receivedAt)
	if pc == nil {
		r.metrics.GenericFailures.Inc()
		return
	}

	switch {
	case pkt.Position != nil:
		r.routePosition(pkt, pc, receivedAt)
	case pkt.Status != nil:
		r.routeStatus(pkt, pc)
	default:
		r.metrics.PacketsProcessed.WithLabelValues("other").Inc()
	}
}

func (r *Router) routePosition(pkt *decoder.APRSPacket, pc *PacketContext, receivedAt time.Time) {
	switch pkt.PositionSourceType() {
	case decoder.SourceTypeAircraft:
		fix, err := FixFromAPRS(pkt, pc, receivedAt)
		if err != nil {
			r.metrics.ParseFailures.WithLabelValues("ogn").Inc()
			return
		}
		r.enqueueFix(fix)
		r.metrics.PacketsProcessed.WithLabelValues("aircraft_position").Inc()
	case decoder.SourceTypeReceiver:
		item := receiverPositionItem{
			receiverID: pc.ReceiverID,
			latitude:   pkt.Position.Latitude,
			longitude:  pkt.Position.Longitude,
			at:         pc.ReceivedAt,
		}
		if pkt.Position.AltitudeFt != nil {
			alt := *pkt.Position.AltitudeFt
			item.altitudeFt = &alt
		}
		select {
		case r.receiverPositionQueue <- item:
			r.metrics.PacketsProcessed.WithLabelValues("receiver_position").Inc()
		default:
			r.metrics.QueueSendErrors.Inc()
			r.log.Warn("Receiver position queue full, dropping update")
		}
	case decoder.SourceTypeWeatherStation:
		r.metrics.PacketsProcessed.WithLabelValues("weather").Inc()
	default:
		r.metrics.PacketsProcessed.WithLabelValues("other").Inc()
	}
}

func (r *Router) routeStatus(pkt *decoder.APRSPacket, pc *PacketContext) {
	item := receiverStatusItem{
		receiverID: pc.ReceiverID,
		status:     pkt.Status.Comment,
		at:         pc.ReceivedAt,
	}
	select {
	case r.receiverStatusQueue <- item:
		r.metrics.PacketsProcessed.WithLabelValues("receiver_status").Inc()
	default:
		r.metrics.QueueSendErrors.Inc()
		r.log.Warn("Receiver status queue full, dropping update")
	}
}

func (r *Router) handleServerLine(line string, receivedAt time.Time) {
	msg, err := ParseServerMessage(line, receivedAt)
	if err != nil {
		// Plain keepalive comments are expected and carry nothing.
		r.log.Debug("Unparsed server line", logger.String("line", line), logger.Error(err))
		return
	}
	r.metrics.LagSeconds.WithLabelValues("ogn").Set(float64(msg.LagMS) / 1000)
	select {
	case r.serverStatusQueue <- msg:
		r.metrics.PacketsProcessed.WithLabelValues("server_status").Inc()
	default:
		r.metrics.QueueSendErrors.Inc()
	}
}

func (r *Router) dispatchBeast(ctx context.Context, frame []byte, receivedAt time.Time) {
	msg, err := decoder.DecodeBeastFrame(frame, receivedAt)
	if err != nil {
		r.metrics.ParseFailures.WithLabelValues("beast").Inc()
		r.log.Debug("Beast frame decode failed", logger.Error(err))
		return
	}
	raw := hex.EncodeToString(msg.RawFrame)
	r.generic.Archive(raw)
	rec := &RawMessage{
		ID:         uuid.New(),
		Source:     envelope.SourceBeast,
		Raw:        frame,
		ReceivedAt: receivedAt,
	}
	if err := r.rawMessages.Insert(ctx, rec); err != nil {
		r.log.Warn("Raw message insert failed", logger.Error(err))
		return
	}
	r.metrics.PacketsProcessed.WithLabelValues("beast").Inc()
}

func (r *Router) dispatchSBS(ctx context.Context, line string, receivedAt time.Time) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	r.generic.Archive(line)

	msg, err := decoder.ParseSBSMessage(line)
	if err != nil {
		r.metrics.ParseFailures.WithLabelValues("sbs").Inc()
		r.log.Debug("SBS parse failed", logger.String("line", line), logger.Error(err))
		return
	}

	rec := &RawMessage{
		ID:         uuid.New(),
		Source:     envelope.SourceSbs,
		Raw:        []byte(line),
		ReceivedAt: receivedAt,
	}
	if err := r.rawMessages.Insert(ctx, rec); err != nil {
		r.log.Warn("Raw message insert failed", logger.Error(err))
		return
	}

	if !msg.HasPosition() {
		r.metrics.PacketsProcessed.WithLabelValues("sbs_other").Inc()
		return
	}
	fix, err := FixFromSBS(msg, receivedAt)
	if err != nil {
		r.metrics.ParseFailures.WithLabelValues("sbs").Inc()
		return
	}
	fix.RawMessageID = rec.ID
	r.enqueueFix(fix)
	r.metrics.PacketsProcessed.WithLabelValues("aircraft_position").Inc()
}

func (r *Router) enqueueFix(fix *tracker.Fix) {
	select {
	case r.aircraftQueue <- fix:
	default:
		r.metrics.QueueSendErrors.Inc()
		r.log.Warn("Aircraft queue full, dropping fix", logger.String("aircraft_id", fix.AircraftID))
	}
}

// QueueDepths reports outstanding work per queue, used by the shutdown
// coordinator to wait for drain.
func (r *Router) QueueDepths() map[string]int {
	return map[string]int{
		"aircraft":          len(r.aircraftQueue),
		"receiver_position": len(r.receiverPositionQueue),
		"receiver_status":   len(r.receiverStatusQueue),
		"server_status":     len(r.serverStatusQueue),
	}
}

func (r *Router) reportQueueDepths() {
	caps := map[string]int{
		"aircraft":          cap(r.aircraftQueue),
		"receiver_position": cap(r.receiverPositionQueue),
		"receiver_status":   cap(r.receiverStatusQueue),
		"server_status":     cap(r.serverStatusQueue),
	}
	for name, depth := range r.QueueDepths() {
		r.metrics.QueueDepth.WithLabelValues(name).Set(float64(depth))
		if capacity := caps[name]; capacity > 0 && depth*100 >= capacity*80 {
			r.log.Warn("Queue over 80% capacity",
				logger.String("queue", name),
				logger.Int("depth", depth),
				logger.Int("capacity", capacity))
		}
	}
}
