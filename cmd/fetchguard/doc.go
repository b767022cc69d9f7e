// Command fetchguard runs the guarded outbound fetch service: an HTTP
// API in front of a fetch engine with SSRF validation, DNS-rebinding
// defense, retries, caching, and request coalescing.
package main
