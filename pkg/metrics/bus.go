package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/StricklySoft/stricklysoft-runtime/pkg/events"
)

// busCollector exports the counters of an event bus at scrape time.
type busCollector struct {
	bus         *events.Bus
	published   *prometheus.Desc
	dropped     *prometheus.Desc
	subscribers *prometheus.Desc
}

func newBusCollector(namespace string, bus *events.Bus) *busCollector {
	return &busCollector{
		bus: bus,
		published: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "event_bus", "published_total"),
			"Total number of events published on the bus", nil, nil),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "event_bus", "dropped_total"),
			"Total number of events dropped because a subscriber buffer was full", nil, nil),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "event_bus", "subscribers"),
			"Number of active bus subscribers", nil, nil),
	}
}

func (b *busCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.published
	ch <- b.dropped
	ch <- b.subscribers
}

func (b *busCollector) Collect(ch chan<- prometheus.Metric) {
	stats := b.bus.Stats()
	ch <- prometheus.MustNewConstMetric(b.published, prometheus.CounterValue, float64(stats.Published))
	ch <- prometheus.MustNewConstMetric(b.dropped, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(b.subscribers, prometheus.GaugeValue, float64(stats.Subscribers))
}
