// Package domain contains the core types shared across the service: roles,
// report and feedback records, and the closed set of realtime event payloads.
package domain
