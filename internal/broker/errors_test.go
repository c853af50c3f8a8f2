package broker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantOK     bool
	}{
		{"nil", nil, 0, false},
		{"structured", &APIError{Status: 429, Body: "slow down"}, 429, true},
		{"wrapped structured", fmt.Errorf("getting quote: %w", &APIError{Status: 503}), 503, true},
		{"message pattern", errors.New("request failed, 503 status code"), 503, true},
		{"pattern needs word boundary", errors.New("id 1503 status codes seen"), 0, false},
		{"plain error", errors.New("dial tcp: connection refused"), 0, false},
		{"not found", ErrNotFound, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := StatusOf(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Status: 403, Body: "forbidden"}
	assert.Equal(t, "API error 403: forbidden", err.Error())
}
