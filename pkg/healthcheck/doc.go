/*
Package healthcheck runs a single periodic TCP-probe worker over every
backend in a registry.Registry, toggling each backend's health bit and
publishing SERVICE_HEALTH_UPDATE on transitions only. It also
subscribes to the same event type so that externally pushed health
updates (from a monitor other than this worker) take effect
immediately rather than waiting for the next probe cycle.
*/
package healthcheck
