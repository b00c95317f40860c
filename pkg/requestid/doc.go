// Package requestid generates and propagates request correlation ids.
//
// Ids combine a millisecond timestamp with a process-wide counter, e.g.
// "req_1735689600000_42". They are ordered within a process and distinct
// enough for log correlation; they are not globally unique across restarts.
package requestid
