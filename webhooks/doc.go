// Package webhooks verifies, dedupes and coalesces inbound repository
// webhooks before handing them to the monitor.
//
// Delivery processing is driven by a claim lifecycle:
// pending/retry_ready -> processing -> processed|dead.
// A redelivered webhook that was already processed is acknowledged without
// signalling any service again.
package webhooks
