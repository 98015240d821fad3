package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/zerr"
)

func TestIsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sentinel", domain.ErrNodeNotFound, true},
		{"with metadata", zerr.With(domain.ErrNodeNotFound, "node_id", "A"), true},
		{"wrapped copy", zerr.Wrap(zerr.With(domain.ErrNodeNotFound, "node_id", "A"), "submit A"), true},
		{"joined", errors.Join(errors.New("other"), zerr.With(domain.ErrNodeNotFound, "node_id", "B")), true},
		{"different sentinel", zerr.With(domain.ErrNotJobNode, "node_id", "A"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.IsError(tt.err, domain.ErrNodeNotFound))
		})
	}
}
