/*
Package observability turns engine lifecycle hooks into Prometheus metrics.

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	eng, _ := feelflow.New(feelflow.WithHooks(metrics.Hooks()))
*/
package observability
