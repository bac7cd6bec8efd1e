package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/vemodkit/internal/logging"
)

// ConfigurationProvider answers workspace/configuration requests with one
// value per requested item, in order.
type ConfigurationProvider interface {
	Configuration(ctx context.Context, items []ConfigurationItem) ([]any, error)
}

// ConfigurationProviderFunc adapts a function to ConfigurationProvider.
type ConfigurationProviderFunc func(ctx context.Context, items []ConfigurationItem) ([]any, error)

// Configuration implements ConfigurationProvider.
func (f ConfigurationProviderFunc) Configuration(ctx context.Context, items []ConfigurationItem) ([]any, error) {
	return f(ctx, items)
}

// ConfigurationMiddleware returns the handler for workspace/configuration
// requests from the server. It logs each request and forwards it to
// provider.
//
// A provider error or panic is returned as an *RPCError with
// CodeRequestFailed. It is never turned into an empty result.
// A nil provider answers null for every item.
func ConfigurationMiddleware(provider ConfigurationProvider, logger *logging.Logger) RequestHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("configuration")

	return func(ctx context.Context, method string, raw json.RawMessage) (result any, err error) {
		var params ConfigurationParams
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, &RPCError{
					Code:    CodeInvalidParams,
					Message: fmt.Sprintf("invalid %s params: %v", method, err),
				}
			}
		}

		logger.Debug("server requested %d section(s): %s", len(params.Items), sectionList(params.Items))

		if provider == nil {
			return make([]any, len(params.Items)), nil
		}

		defer func() {
			if r := recover(); r != nil {
				logger.Error("configuration provider panicked: %v", r)
				result = nil
				err = &RPCError{
					Code:    CodeRequestFailed,
					Message: fmt.Sprintf("configuration provider panicked: %v", r),
				}
			}
		}()

		values, perr := provider.Configuration(ctx, params.Items)
		if perr != nil {
			logger.Warn("configuration provider failed: %v", perr)
			return nil, &RPCError{
				Code:    CodeRequestFailed,
				Message: fmt.Sprintf("configuration provider failed: %v", perr),
			}
		}
		if len(values) != len(params.Items) {
			return nil, &RPCError{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("configuration provider returned %d values for %d items", len(values), len(params.Items)),
			}
		}
		if values == nil {
			values = []any{}
		}
		return values, nil
	}
}

func sectionList(items []ConfigurationItem) string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Section
		if names[i] == "" {
			names[i] = "<root>"
		}
	}
	return strings.Join(names, ", ")
}
