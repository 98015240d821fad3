package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/builder/internal/core/domain"
)

func TestInternedString(t *testing.T) {
	is1 := domain.NewInternedString("rollup")
	is2 := domain.NewInternedString("rollup")

	assert.Equal(t, is1, is2)
	assert.Equal(t, "rollup", is1.String())
	assert.Empty(t, domain.InternedString{}.String())
}

func TestInternedStringJSON(t *testing.T) {
	type wrapper struct {
		Template domain.InternedString `json:"template"`
	}

	data, err := json.Marshal(wrapper{Template: domain.NewInternedString("file-%H%M")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"template":"file-%H%M"}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "file-%H%M", out.Template.String())
}
