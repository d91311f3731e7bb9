// Package prometheus renders engine metrics in the Prometheus text
// exposition format.
package prometheus
