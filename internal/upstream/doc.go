// Package upstream fetches repository files from the ordered upstream
// targets of a hub. Targets are tried in priority order; transient failures
// (network errors, 5xx, 429) are retried with exponential backoff before the
// fetcher fails over to the next target, while 404/410 and auth rejections
// move on immediately. Callers receive the first successful response together
// with the target that produced it.
package upstream
