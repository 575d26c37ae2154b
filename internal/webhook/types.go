package webhook

import "github.com/mattjoyce/jarscout/internal/workqueue"

// Scanner queues work for the pipeline. *pipeline.Pipeline implements it.
type Scanner interface {
	Scan(root string) (workqueue.Item, error)
	Submit(path string) (workqueue.Item, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig defines a single hook endpoint.
type EndpointConfig struct {
	Path            string
	Root            string
	Secret          string
	SignatureHeader string
	MaxBodySize     int64
}

// TriggerRequest is the optional JSON body of a hook call.
type TriggerRequest struct {
	Path string `json:"path"`
}

// TriggerResponse is the JSON response for accepted hook calls.
type TriggerResponse struct {
	ItemID uint64 `json:"item_id"`
	Path   string `json:"path"`
	Action string `json:"action"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize     = 64 * 1024
	DefaultSignatureHeader = "X-Hub-Signature-256"
)
