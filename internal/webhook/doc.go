// Package webhook implements signed scan hooks.
//
// An artifact repository or CI job that publishes jars can ask jarscout to
// rescan a directory, or to list a single new archive, by POSTing to a
// configured path. Every request must carry an HMAC-SHA256 signature of the
// body made with the endpoint's pre-shared secret.
//
// # Security Model
//
// - HMAC-SHA256 signatures verified using crypto/subtle (constant-time comparison)
// - Body size limits enforced before verification
// - No signature details leaked in error responses (always generic 403)
// - Requested paths must lie inside the endpoint root
// - Request logging excludes payloads
//
// # Configuration
//
//	webhooks:
//	  listen: "127.0.0.1:8090"
//	  endpoints:
//	    - path: /hooks/artifacts
//	      root: /srv/maven-repo
//	      secret: ${ARTIFACT_HOOK_SECRET}
//	      signature_header: X-Hub-Signature-256
//	      max_body_size: 64KB
//
// # Request Flow
//
//  1. HTTP POST arrives at a configured path
//  2. Body size checked (413 if too large)
//  3. Signature verified over the raw body (403 on mismatch)
//  4. Body decoded as {"path": "..."}; an empty body or path means the root
//  5. Path resolved and confined to the root (403 outside, 404 missing)
//  6. Directories are scanned, files are classified directly
//  7. 202 Accepted returned with the queued item id
//
// # Error Responses
//
// - 400 Bad Request: Body is not a JSON object
// - 403 Forbidden: Invalid or missing signature, or path outside the root
// - 404 Not Found: Unknown hook path or missing target
// - 413 Payload Too Large: Body exceeds max_body_size
// - 503 Service Unavailable: Pipeline is stopping
package webhook
