package resources

import (
	"context"
	"encoding/json"
)

// Static returns a provider that always yields text
func Static(text string) Provider {
	return func(context.Context) (string, error) {
		return text, nil
	}
}

// JSON returns a provider that marshals the value produced by fn
func JSON(fn func(ctx context.Context) (any, error)) Provider {
	return func(ctx context.Context) (string, error) {
		v, err := fn(ctx)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
