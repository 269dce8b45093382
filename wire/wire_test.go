package wire_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/malivvan/uis/wire"
)

func TestDeviceInfoRoundTrip(t *testing.T) {
	in := wire.DeviceInfo{
		Usage:       wire.Usage{Page: 1, ID: 5},
		ReportCount: [wire.NumReportTypes]int32{2, 1, 0},
		NameID:      7,
	}
	buf, err := in.MarshalBinary()
	require.NoError(t, err)

	var out wire.DeviceInfo
	require.NoError(t, out.UnmarshalBinary(buf))

	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("DeviceInfo round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDeviceInfoUnmarshalShortBuffer(t *testing.T) {
	var out wire.DeviceInfo
	err := out.UnmarshalBinary([]byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, errors.Is(err, wire.ErrIOFailed))
}

func TestReportDataRoundTrip(t *testing.T) {
	in := wire.ReportData{
		Report: 0xdeadbeefcafe,
		Items: []wire.ItemDatum{
			{Index: 0, Value: 0.5},
			{Index: 3, Value: -1.25},
		},
	}
	buf, err := in.MarshalBinary()
	require.NoError(t, err)

	var out wire.ReportData
	require.NoError(t, out.UnmarshalBinary(buf))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("ReportData round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReportDataUnmarshalShortBody(t *testing.T) {
	buf := make([]byte, 12)
	buf[8] = 5 // claims 5 items but body is absent
	var out wire.ReportData
	err := out.UnmarshalBinary(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, wire.ErrIOFailed))
}

func TestTypeMaskTypesLinearization(t *testing.T) {
	require.Equal(t, []wire.ReportType{wire.ReportTypeInput}, (wire.MaskInput).Types())
	require.Equal(t,
		[]wire.ReportType{wire.ReportTypeInput, wire.ReportTypeOutput, wire.ReportTypeFeature},
		(wire.MaskInput | wire.MaskOutput | wire.MaskFeature).Types())
	require.Nil(t, wire.TypeMask(0).Types())
}

func TestFromReportTypeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		t wire.ReportType
		m wire.TypeMask
	}{
		{wire.ReportTypeInput, wire.MaskInput},
		{wire.ReportTypeOutput, wire.MaskOutput},
		{wire.ReportTypeFeature, wire.MaskFeature},
	} {
		require.Equal(t, tc.m, wire.FromReportType(tc.t))
	}
}
