package pool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
)

func TestTierPriority(t *testing.T) {
	assert.Equal(t, 10, Elite.Priority())
	assert.Equal(t, 5, Advanced.Priority())
	assert.Equal(t, 0, Standard.Priority())
	assert.Equal(t, 0, Tier(42).Priority())
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"", Standard, false},
		{"standard", Standard, false},
		{"Advanced", Advanced, false},
		{" ELITE ", Elite, false},
		{"platinum", Standard, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTier(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTierJSON(t *testing.T) {
	type body struct {
		Tier Tier `json:"tier"`
	}

	out, err := json.Marshal(body{Tier: Elite})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"elite"}`, string(out))

	var in body
	require.NoError(t, json.Unmarshal([]byte(`{"tier":"advanced"}`), &in))
	assert.Equal(t, Advanced, in.Tier)

	require.Error(t, json.Unmarshal([]byte(`{"tier":"gold"}`), &in))
}

func TestWaitQueueBands(t *testing.T) {
	var q waitQueue
	std1 := &request{requester: "s1", tier: Standard}
	hi1 := &request{requester: "h1", tier: Advanced}
	std2 := &request{requester: "s2", tier: Standard}
	hi2 := &request{requester: "h2", tier: Elite}

	for _, r := range []*request{std1, hi1, std2, hi2} {
		q.push(r)
	}
	require.Equal(t, 4, q.len())

	assert.True(t, q.remove(std2))
	assert.False(t, q.remove(std2))

	var order []string
	for r := q.pop(); r != nil; r = q.pop() {
		order = append(order, r.requester)
	}
	assert.Equal(t, []string{"h1", "h2", "s1"}, order)
}
