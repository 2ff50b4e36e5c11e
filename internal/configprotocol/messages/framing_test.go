package messages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramerBuildsMonotonicSequence(t *testing.T) {
	f := NewFramer()
	r1, err := f.NewRequest(OpGetPropertyValue, PropertyValuePayload{ComponentGlobalID: "/dev", PropertyName: "Gain"})
	require.NoError(t, err)
	r2, err := f.NewRequest(OpGetPropertyValue, PropertyValuePayload{ComponentGlobalID: "/dev", PropertyName: "Gain"})
	require.NoError(t, err)
	require.Less(t, r1.Header.Sequence, r2.Header.Sequence)
	require.NotEqual(t, r1.Header.ID, r2.Header.ID)
}

func TestValidateFrameRejectsMissingOpOnRequest(t *testing.T) {
	f := NewFramer()
	req, err := f.NewRequest(OpHandshake, HandshakePayload{ClientMaxVersion: 3})
	require.NoError(t, err)
	require.NoError(t, ValidateFrame(req))

	req.Header.Op = ""
	require.Error(t, ValidateFrame(req))
}

func TestResponseDoesNotRequireOp(t *testing.T) {
	f := NewFramer()
	resp, err := f.NewResponse("req-1", HandshakeResult{NegotiatedVersion: 2})
	require.NoError(t, err)
	require.NoError(t, ValidateFrame(resp))
	require.Equal(t, "req-1", resp.Header.ID)
}

func TestMinVersionForGatesLockOps(t *testing.T) {
	require.Equal(t, 3, MinVersionFor(OpLockDevice))
	require.Equal(t, 3, MinVersionFor(OpUnlockDevice))
	require.Equal(t, 1, MinVersionFor(OpGetPropertyValue))
}
