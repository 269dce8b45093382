package kerneldev_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/wire"
)

func gamepadSpec() kerneldev.SimSpec {
	var spec kerneldev.SimSpec
	spec.Usage = wire.Usage{Page: 1, ID: 5}
	spec.NameID = 1
	spec.Reports[wire.ReportTypeInput] = []kerneldev.SimReport{{
		ID: 1,
		Items: []wire.ItemInfoReply{
			{Usage: wire.Usage{Page: 1, ID: 0x30}},
			{Usage: wire.Usage{Page: 1, ID: 0x31}},
		},
	}}
	spec.Reports[wire.ReportTypeOutput] = []kerneldev.SimReport{{
		ID:    2,
		Items: []wire.ItemInfoReply{{Usage: wire.Usage{Page: 1, ID: 0x50}}},
	}}
	return spec
}

func TestSimDeviceInfoAndReportInfo(t *testing.T) {
	sim := kerneldev.NewSim(gamepadSpec())

	info, err := sim.DeviceInfo()
	require.NoError(t, err)
	require.Equal(t, uint16(1), info.Usage.Page)
	require.Equal(t, int32(1), info.ReportCount[wire.ReportTypeInput])
	require.Equal(t, int32(1), info.ReportCount[wire.ReportTypeOutput])

	ri, err := sim.ReportInfo(wire.ReportTypeInput, 0)
	require.NoError(t, err)
	require.Equal(t, uint8(1), ri.ID)
	require.EqualValues(t, 2, ri.ItemCount)

	_, err = sim.ReportInfo(wire.ReportTypeInput, 5)
	require.ErrorIs(t, err, wire.ErrBadValue)
}

func TestSimItemInfo(t *testing.T) {
	sim := kerneldev.NewSim(gamepadSpec())
	ri, err := sim.ReportInfo(wire.ReportTypeInput, 0)
	require.NoError(t, err)

	item0, err := sim.ItemInfo(ri.Report, 0)
	require.NoError(t, err)
	require.Equal(t, uint16(0x30), item0.Usage.ID)

	_, err = sim.ItemInfo(ri.Report, 9)
	require.ErrorIs(t, err, wire.ErrBadValue)
}

func TestSimDeliverAndRead(t *testing.T) {
	sim := kerneldev.NewSim(gamepadSpec())
	ri, err := sim.ReportInfo(wire.ReportTypeInput, 0)
	require.NoError(t, err)

	require.NoError(t, sim.Deliver(wire.ReportTypeInput, 0, []wire.ItemDatum{{Index: 0, Value: 0.8}}))

	data, err := sim.Read(ri.Report)
	require.NoError(t, err)
	require.Equal(t, ri.Report, data.Report)
	require.Len(t, data.Items, 1)
	require.InDelta(t, 0.8, data.Items[0].Value, 1e-6)
}

func TestSimReadUnblocksOnStop(t *testing.T) {
	sim := kerneldev.NewSim(gamepadSpec())
	ri, err := sim.ReportInfo(wire.ReportTypeInput, 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sim.Read(ri.Report)
		done <- err
	}()

	require.NoError(t, sim.Stop(ri.Report))

	select {
	case err := <-done:
		require.ErrorIs(t, err, wire.ErrReportStopped)
		require.NotErrorIs(t, err, wire.ErrDeviceGone)
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Stop")
	}
}

func TestSimGoNotReadyFailsDeviceInfo(t *testing.T) {
	sim := kerneldev.NewSim(gamepadSpec())
	sim.GoNotReady()
	_, err := sim.DeviceInfo()
	require.ErrorIs(t, err, wire.ErrDeviceGone)
}

func TestSimStringInfo(t *testing.T) {
	sim := kerneldev.NewSim(gamepadSpec())
	sim.SetString(1, "Demo Pad", wire.StringEncodingASCII)

	data, enc, err := sim.StringInfo(1)
	require.NoError(t, err)
	require.Equal(t, wire.StringEncodingASCII, enc)
	require.Equal(t, "Demo Pad", string(data))

	_, _, err = sim.StringInfo(99)
	require.ErrorIs(t, err, wire.ErrIOFailed)
}

func TestSimSendRejectsUnknownReport(t *testing.T) {
	sim := kerneldev.NewSim(gamepadSpec())
	err := sim.Send(wire.ReportData{Report: 999})
	require.ErrorIs(t, err, wire.ErrBadValue)
}
