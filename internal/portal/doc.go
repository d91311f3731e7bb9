// Package portal is the HTTP surface of the UIMP gateway: the JSON auth API,
// health and metrics endpoints, and placeholder pages behind the edge
// middleware.
package portal
