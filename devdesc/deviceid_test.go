package devdesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceID_MAC(t *testing.T) {
	entries, err := ParseDeviceID("M01:23:45:67:89:AB")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DeviceIDMAC, entries[0].Kind)
	assert.Equal(t, [6]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB}, entries[0].MAC)
}

func TestParseDeviceID_ShortMACFails(t *testing.T) {
	_, err := ParseDeviceID("M00:11")
	assert.ErrorIs(t, err, ErrInvalidMAC)
}

func TestParseDeviceID_EmptySegment(t *testing.T) {
	entries, err := ParseDeviceID(";;M01:23:45:67:89:AB")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, DeviceIDEmpty, entries[0].Kind)
	assert.Equal(t, DeviceIDEmpty, entries[1].Kind)
	assert.Equal(t, DeviceIDMAC, entries[2].Kind)
}

func TestParseDeviceID_UnknownTagFails(t *testing.T) {
	_, err := ParseDeviceID("X01:23")
	assert.Error(t, err)
}

func TestParseDeviceID_LowercaseTag(t *testing.T) {
	entries, err := ParseDeviceID("m01:23:45:67:89:ab")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DeviceIDMAC, entries[0].Kind)
	assert.Equal(t, [6]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB}, entries[0].MAC)
}
