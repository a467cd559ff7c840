// Package metrics records compilation and live-reload metrics.
//
// Components receive a Recorder by injection and default to NoopRecorder, so
// call sites never check for nil. PrometheusRecorder is the real
// implementation; HTTPHandler exposes its registry for scraping.
package metrics
