// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesDelivered counts frames handed up by link devices
	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tyto_stack_frames_total",
			Help: "Total number of frames delivered by link devices",
		},
		[]string{"device"},
	)

	// FramesUnhandled counts frames dropped because no network protocol
	// is registered for their protocol number
	FramesUnhandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tyto_stack_unhandled_frames_total",
			Help: "Total number of frames with no registered network protocol",
		},
		[]string{"device"},
	)

	// DatagramsAccepted counts datagrams accepted by the IPv4 ingress path
	DatagramsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tyto_ipv4_accepted_total",
			Help: "Total number of IPv4 datagrams accepted",
		},
		[]string{"device"},
	)

	// DatagramsDropped counts datagrams dropped by the IPv4 ingress path
	DatagramsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tyto_ipv4_dropped_total",
			Help: "Total number of IPv4 datagrams dropped, by reason",
		},
		[]string{"device", "reason"},
	)

	// InterfacesRegistered tracks the number of configured IPv4 interfaces
	InterfacesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tyto_ipv4_interfaces",
			Help: "Number of registered IPv4 interfaces",
		},
	)

	// DeviceReadErrors counts read failures in device frame loops
	DeviceReadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tyto_device_read_errors_total",
			Help: "Total number of read errors in device frame loops",
		},
		[]string{"device"},
	)
)
