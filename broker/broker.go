package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/Ethernal-Tech/chronicle/actor"
	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	kindBlock     = "block"
	kindMilestone = "milestone"

	statusOk      = "ok"
	statusInvalid = "invalid"
	statusFailed  = "failed"
)

// Error terminates the broker when a record could not be stored.
type Error struct {
	Record string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to store %s: %v", e.Record, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Broker stores the records received from the upstream listener.
type Broker struct {
	db      ledger.Database
	metrics *Metrics
}

var _ actor.Actor = (*Broker)(nil)

func New(db ledger.Database, metrics *Metrics) *Broker {
	return &Broker{
		db:      db,
		metrics: metrics,
	}
}

func (b *Broker) Name() string {
	return "broker"
}

func (b *Broker) RegisterHandlers(h *actor.Handlers) {
	actor.On(h, b.handleBlock)
	actor.On(h, b.handleMilestone)
}

func (b *Broker) Init(*actor.Context) error {
	return nil
}

func (b *Broker) handleBlock(cx *actor.Context, block *ledger.BlockRecord) error {
	cx.Logger().Trace("Received block", "id", block.ID, "slot", block.Slot)

	return b.store(cx, kindBlock, block, func(ctx context.Context) error {
		return b.db.UpsertBlock(ctx, block)
	})
}

func (b *Broker) handleMilestone(cx *actor.Context, milestone *ledger.MilestoneRecord) error {
	cx.Logger().Trace("Received milestone", "index", milestone.Index, "blocks", len(milestone.BlockIDs))

	return b.store(cx, kindMilestone, milestone, func(ctx context.Context) error {
		return b.db.UpsertMilestone(ctx, milestone)
	})
}

func (b *Broker) store(
	cx *actor.Context, kind string, record interface{ Validate() error }, upsert func(context.Context) error,
) error {
	// a malformed record is reported and skipped, it never stops ingestion
	if err := record.Validate(); err != nil {
		cx.Logger().Warn("Could not read record", "kind", kind, "err", err)
		b.metrics.record(kind, statusInvalid)

		return nil
	}

	start := time.Now()
	err := upsert(cx.Context())

	b.metrics.observe(kind, time.Since(start))

	if err != nil {
		b.metrics.record(kind, statusFailed)

		return &Error{Record: kind, Err: err}
	}

	b.metrics.record(kind, statusOk)

	return nil
}

// Metrics of the broker, shared by every broker instance of the process. A nil *Metrics records nothing.
type Metrics struct {
	records *prometheus.CounterVec
	upserts *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chronicle_broker_records_total", Help: "Records handled by the broker"},
			[]string{"kind", "status"},
		),
		upserts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chronicle_broker_upsert_duration_seconds",
				Help:    "Duration of record upserts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.records, m.upserts)
	}

	return m
}

func (m *Metrics) record(kind, status string) {
	if m != nil {
		m.records.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) observe(kind string, d time.Duration) {
	if m != nil {
		m.upserts.WithLabelValues(kind).Observe(d.Seconds())
	}
}
