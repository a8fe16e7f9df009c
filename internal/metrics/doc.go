// Package metrics provides observability hooks for compile, publish and
// reconcile runs.
//
// # Design
//
// Components hold a Recorder and default to NoopRecorder, so metrics
// collection needs no nil checks at call sites:
//
//	coordinator := publish.New(dialer, publish.Options{
//	    Metrics: metrics.NoopRecorder{}, // default
//	})
//
// When metrics are enabled the CLI swaps in a PrometheusRecorder:
//
//	recorder := metrics.NewPrometheusRecorder(prometheus.NewRegistry())
//	coordinator := publish.New(dialer, publish.Options{Metrics: recorder})
//
// # Export
//
// One-shot CLI runs have nothing to scrape, so the registry is written to a
// node_exporter textfile (WriteTextfile) when a run finishes.
package metrics
