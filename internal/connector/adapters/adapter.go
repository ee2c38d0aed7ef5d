// Package adapters translates between the canonical chat request/result
// shapes and each backend's wire format.
package adapters

import (
	"context"
	"net/http"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
)

// ProviderAdapter builds one provider-specific HTTP request from a
// canonical chat request and parses the provider's successful response
// body into the canonical tagged result. Error classification happens in
// the connector, which is why ParseResponse takes a body, not a response.
type ProviderAdapter interface {
	Name() string
	BuildRequest(ctx context.Context, req types.ChatRequest) (*http.Request, error)
	ParseResponse(body []byte) (types.ChatResult, error)
	// Do sends an HTTP request using the provider's configured client.
	Do(req *http.Request) (*http.Response, error)
}
