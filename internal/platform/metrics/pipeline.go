package metrics

// Event-pipeline counters. Publish failures are swallowed on the write
// path, so these counters are the primary operator signal for event loss.
var (
	EventsPublished = NewCounterVec(Opts{
		Name: "taskwire_events_published_total",
		Help: "Envelopes successfully handed to the transport, by topic and binding.",
	}, []string{"topic", "binding"})

	EventPublishFailures = NewCounterVec(Opts{
		Name: "taskwire_event_publish_failures_total",
		Help: "Envelopes dropped after exhausting publish retries, by topic and binding.",
	}, []string{"topic", "binding"})

	HandlerOutcomes = NewCounterVec(Opts{
		Name: "taskwire_handler_outcomes_total",
		Help: "Delivery outcomes returned by consumer handlers, by handler and verdict.",
	}, []string{"handler", "outcome"})
)

func init() {
	Default.MustRegister(EventsPublished, EventPublishFailures, HandlerOutcomes)
}
