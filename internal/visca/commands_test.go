package visca

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNibbleHex(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0x1234, "01020304"},
		{0x0256, "00020506"},
		{0, "00000000"},
		{0xFFFF, "0F0F0F0F"},
		{-10, "0F0F0F06"},
		{2448, "00090009"},
	}
	for _, tt := range tests {
		got, err := nibbleHex(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "nibbleHex(%#x)", tt.in)
	}

	_, err := nibbleHex(0x10000)
	assert.ErrorIs(t, err, ErrValueRange)
	_, err = nibbleHex(-0x8001)
	assert.ErrorIs(t, err, ErrValueRange)
}

func TestFixedCommands(t *testing.T) {
	assert.Equal(t, "8101060115150303FF", render(OpStop))
	assert.Equal(t, "81010001FF", render(OpCancel))
	assert.Equal(t, "81010605FF", render(OpReset))
	assert.Equal(t, "81010604FF", render(OpHome))
	assert.Equal(t, "8101040700FF", render(OpZoomStop))
	assert.Equal(t, "81090447FF", render(OpQueryZoom))
	assert.Equal(t, "81090612FF", render(OpQueryPanTilt))
}

func TestEncodeCardinal(t *testing.T) {
	tests := []struct {
		op    Op
		speed int
		want  string
	}{
		{OpLeft, 5, "8101060105150103FF"},
		{OpRight, 24, "8101060118150203FF"},
		{OpUp, 5, "8101060115050301FF"},
		{OpDown, 18, "8101060115120302FF"},
		{OpLeft, 0, "8101060100150103FF"},
	}
	for _, tt := range tests {
		got, err := EncodeCardinal(tt.op, tt.speed)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s(%d)", tt.op, tt.speed)
	}

	_, err := EncodeCardinal(OpLeft, 25)
	assert.ErrorIs(t, err, ErrSpeedRange)
	_, err = EncodeCardinal(OpUp, -1)
	assert.ErrorIs(t, err, ErrSpeedRange)
	_, err = EncodeCardinal(OpLeftUp, 3)
	assert.Error(t, err)
}

func TestEncodeDiagonal(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpLeftUp, "8101060118120101FF"},
		{OpRightUp, "8101060118120201FF"},
		{OpLeftDown, "8101060118120102FF"},
		{OpRightDown, "8101060118120202FF"},
	}
	for _, tt := range tests {
		got, err := EncodeDiagonal(tt.op, 24, 18)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.op.String())
	}

	got, err := EncodeDiagonal(OpRightDown, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, "810106010A010202FF", got)

	_, err = EncodeDiagonal(OpLeft, 1, 1)
	assert.Error(t, err)
	_, err = EncodeDiagonal(OpLeftUp, 1, 30)
	assert.ErrorIs(t, err, ErrSpeedRange)
}

func TestEncodeGoto(t *testing.T) {
	got, err := EncodeGoto(OpGoto, 0x0256, 0x0010, 5)
	require.NoError(t, err)
	assert.Equal(t, "8101060205050002050600000100FF", got)

	got, err = EncodeGoto(OpGotoRelative, -1, 0, 24)
	require.NoError(t, err)
	assert.Equal(t, "8101060318180F0F0F0F00000000FF", got)

	_, err = EncodeGoto(OpGoto, 70000, 0, 5)
	assert.ErrorIs(t, err, ErrValueRange)
	_, err = EncodeGoto(OpGoto, 0, 0, 25)
	assert.ErrorIs(t, err, ErrSpeedRange)
	_, err = EncodeGoto(OpHome, 0, 0, 5)
	assert.Error(t, err)
}

func TestEncodeZoom(t *testing.T) {
	got, err := EncodeZoom(OpZoomIn, 3)
	require.NoError(t, err)
	assert.Equal(t, "8101040723FF", got)

	got, err = EncodeZoom(OpZoomOut, 7)
	require.NoError(t, err)
	assert.Equal(t, "8101040737FF", got)

	got, err = EncodeZoom(OpZoomIn, 0)
	require.NoError(t, err)
	assert.Equal(t, "8101040720FF", got)

	_, err = EncodeZoom(OpZoomIn, 8)
	assert.ErrorIs(t, err, ErrSpeedRange)
	_, err = EncodeZoom(OpZoomOut, -1)
	assert.ErrorIs(t, err, ErrSpeedRange)
}

func TestEncodeZoomTo(t *testing.T) {
	got, err := EncodeZoomTo(0x4000)
	require.NoError(t, err)
	assert.Equal(t, "8101044704000000FF", got)

	_, err = EncodeZoomTo(-1)
	assert.ErrorIs(t, err, ErrValueRange)
}

func TestEncodePreset(t *testing.T) {
	got, err := EncodePreset(OpPresetRecall, 3)
	require.NoError(t, err)
	assert.Equal(t, "8101043F0203FF", got)

	got, err = EncodePreset(OpPresetSet, 255)
	require.NoError(t, err)
	assert.Equal(t, "8101043F01FFFF", got)

	_, err = EncodePreset(OpPresetSet, 256)
	assert.ErrorIs(t, err, ErrValueRange)
}

func TestDecodeZoom(t *testing.T) {
	z, err := DecodeZoom("905004000000ff")
	require.NoError(t, err)
	assert.Equal(t, 0x4000, z)

	z, err = DecodeZoom("9050000a0b0cff")
	require.NoError(t, err)
	assert.Equal(t, 0x0abc, z)

	for _, resp := range []string{"", "9050ff", "905004000000", "90500400000000ff", "9050"} {
		_, err := DecodeZoom(resp)
		assert.ErrorIs(t, err, ErrPositionUnavailable, "resp %q", resp)
		var de *DecodeError
		assert.True(t, errors.As(err, &de), "resp %q", resp)
	}

	_, err = DecodeZoom("90500z000000ff")
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}

func TestDecodePanTilt(t *testing.T) {
	pt, err := DecodePanTilt("9050" + "00090900" + "00050001" + "ff")
	require.NoError(t, err)
	assert.Equal(t, PanTilt{Pan: 2448, Tilt: 0x0501}, pt)

	pt, err = DecodePanTilt("9050" + "0F060F00" + "0F0E0500" + "FF")
	require.NoError(t, err)
	assert.Equal(t, PanTilt{Pan: 0xF6F0, Tilt: 0xFE50}, pt)

	for _, resp := range []string{"9050000900090005ff", "90500009000900050001000000ff", "ff"} {
		_, err := DecodePanTilt(resp)
		assert.ErrorIs(t, err, ErrPositionUnavailable, "resp %q", resp)
	}
}

func TestPanTiltRoundTrip(t *testing.T) {
	for _, v := range []int{0x0256, 0, 0xFFFF, 2448, 63088} {
		field, err := nibbleHex(v)
		require.NoError(t, err)
		tilt, err := nibbleHex(0x0123)
		require.NoError(t, err)

		pt, err := DecodePanTilt("9050" + field + tilt + "ff")
		require.NoError(t, err)
		assert.Equal(t, PanTilt{Pan: v, Tilt: 0x0123}, pt)
	}
}
