package consumer

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	consumedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commitcollect",
		Subsystem: "consumer",
		Name:      "webhook_events_consumed_total",
		Help:      "Number of webhook events handled and committed.",
	}, []string{"event_type"})

	handlerFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commitcollect",
		Subsystem: "consumer",
		Name:      "webhook_handler_failures_total",
		Help:      "Number of handler failures left uncommitted for redelivery.",
	}, []string{"event_type"})

	poisonCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commitcollect",
		Subsystem: "consumer",
		Name:      "webhook_poison_messages_total",
		Help:      "Number of undecodable messages committed past.",
	}, []string{"topic"})

	commitOffsetGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "commitcollect",
		Subsystem: "consumer",
		Name:      "commit_offset",
		Help:      "Offset of the most recently committed message per partition.",
	}, []string{"topic", "partition"})
)

func init() {
	prometheus.MustRegister(consumedCounter, handlerFailureCounter, poisonCounter, commitOffsetGauge)
}

func recordProcessed(msg Message) {
	consumedCounter.WithLabelValues(msg.EventType).Inc()
	commitOffsetGauge.WithLabelValues(msg.Topic, strconv.Itoa(msg.Partition)).Set(float64(msg.Offset))
}

func recordHandlerError(msg Message) {
	handlerFailureCounter.WithLabelValues(msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	poisonCounter.WithLabelValues(topic).Inc()
}
