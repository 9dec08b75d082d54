package command

import (
	"errors"
	"testing"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		token   string
		want    Kind
		wantErr bool
	}{
		{"C", ComputeKind, false},
		{"M2D", TransferKind(device.HostHeap, device.Local), false},
		{"MD", TransferKind(device.HostHeap, device.Local), false},
		{"D2H", TransferKind(device.Local, device.Pinned), false},
		{"S2D", TransferKind(device.Shared, device.Local), false},
		{"DD", TransferKind(device.Local, device.Local), false},
		{"X2D", Kind{}, true},
		{"M", Kind{}, true},
		{"MDH", Kind{}, true},
		{"M22D", Kind{}, true},
		{"c", Kind{}, true},
		{"", Kind{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseKind(tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, bencherr.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindNames(t *testing.T) {
	k := TransferKind(device.Local, device.HostHeap)
	assert.Equal(t, "DM", k.String())
	assert.Equal(t, "D2M", k.Long())
	assert.Equal(t, "globalsize_DM", k.TunedParam().String())
	assert.Equal(t, "C", ComputeKind.Long())
	assert.Equal(t, "tripcount_C", ComputeKind.TunedParam().String())
	assert.Len(t, ComputeKind.Params(), 2)
	assert.Len(t, k.Params(), 1)
}

func TestDistinct(t *testing.T) {
	kinds, err := ParseKinds([]string{"M2D", "C", "MD", "D2M", "C"})
	require.NoError(t, err)
	distinct := Distinct(kinds)
	require.Len(t, distinct, 3)
	assert.Equal(t, []string{"C", "DM", "MD"},
		[]string{distinct[0].String(), distinct[1].String(), distinct[2].String()})
}

func TestParseKindsStopsAtFirstError(t *testing.T) {
	_, err := ParseKinds([]string{"C", "Q2D", "M2D"})
	assert.ErrorContains(t, err, "Q2D")
}

func TestParseParam(t *testing.T) {
	p, err := ParseParam("globalsize_M2D")
	require.NoError(t, err)
	assert.Equal(t, "globalsize_MD", p.String())

	p, err = ParseParam("tripcount_C")
	require.NoError(t, err)
	assert.Equal(t, Param{Field: Tripcount, Kind: ComputeKind}, p)

	for _, bad := range []string{"tripcount_MD", "globalsize", "size_C", "globalsize_Z"} {
		_, err := ParseParam(bad)
		assert.True(t, errors.Is(err, bencherr.ErrConfiguration), bad)
	}
}
