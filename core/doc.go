// Package core implements the outbound webhook delivery pipeline.
//
// Deliveries move through a claim lifecycle:
// pending/failed_retryable -> in_flight -> succeeded|failed_retryable|failed_terminal.
// Claims are exclusive compare-and-set transitions with a lease so a crashed
// worker never strands an in-flight attempt, and exhausted or terminally
// rejected attempts are parked in the dead-letter store for manual disposition.
package core
