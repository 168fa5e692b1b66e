// Package ratelimit throttles credential endpoints with per-key token buckets.
package ratelimit
