package ippsrv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePrinterName(t *testing.T) {
	cases := map[string]string{
		"office printer":  "office_printer",
		"a#b/c":           "a_b_c",
		"clean-name":      "clean-name",
		"ctrl\x01char":    "ctrl_char",
		"trailing\x7fdel": "trailing_del",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizePrinterName(in), "input %q", in)
	}
}

func TestNewPrinter_derivesPathFromSanitizedName(t *testing.T) {
	p := NewPrinter(nil, "lobby printer", "print3d")
	assert.Equal(t, "/ipp/print3d/lobby_printer", p.Path)
	assert.Equal(t, PrinterIdle, p.State())
	assert.True(t, p.IsAccepting)
}

func TestPrinter_PauseResumeLifecycle(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	ctx := context.Background()

	require.NoError(t, p.Pause(ctx, false))
	assert.Equal(t, PrinterStopped, p.State())
	assert.Contains(t, p.StateReasons(), PSRPaused)

	require.NoError(t, p.Resume(ctx))
	assert.Equal(t, PrinterIdle, p.State())
	assert.NotContains(t, p.StateReasons(), PSRPaused)
}

func TestPrinter_PauseAfterCurrentJobDefers(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	ctx := context.Background()
	j := NewJob(p, 1, "alice")
	require.NoError(t, j.sm.Event(ctx, jobEvtStartProc))

	require.NoError(t, p.Pause(ctx, true))
	assert.Equal(t, PrinterProcessing, p.State(), "pause must defer while a job is processing")
	assert.Contains(t, p.StateReasons(), PSRMovingToPaused)

	require.NoError(t, j.sm.Event(ctx, jobEvtFinish))
	assert.Equal(t, PrinterStopped, p.State(), "deferred pause applies once the job drains")
}

func TestPrinter_ShutdownForcesStopped(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	ctx := context.Background()

	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, PrinterStopped, p.State())
	assert.True(t, p.IsShutdown)
	assert.Contains(t, p.StateReasons(), PSRShutdown)
}

func TestPrinter_StartupClearsShutdownAndResumes(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	ctx := context.Background()
	require.NoError(t, p.Shutdown(ctx))

	require.NoError(t, p.Startup(ctx))
	assert.False(t, p.IsShutdown)
	assert.Equal(t, PrinterIdle, p.State())
	assert.NotContains(t, p.StateReasons(), PSRShutdown)
}

func TestPrinter_EffectiveStateIsMaxOfLocalAndDevices(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	assert.Equal(t, PrinterIdle, p.effectiveState())

	d := NewDevice(p, "")
	d.State = PrinterStopped
	p.devices.Put(d.UUID, d)

	assert.Equal(t, PrinterStopped, p.effectiveState(), "§8 invariant 4: effective state is max(local, aggregated device)")
}

func TestPrinter_JobDispatchDrivesIdleProcessingIdle(t *testing.T) {
	p := NewPrinter(nil, "p1", "print")
	ctx := context.Background()
	j := NewJob(p, 1, "alice")

	assert.Equal(t, PrinterIdle, p.State())
	require.NoError(t, j.sm.Event(ctx, jobEvtStartProc))
	assert.Equal(t, PrinterProcessing, p.State())
	assert.Equal(t, j.ID, p.processingJob)

	require.NoError(t, j.sm.Event(ctx, jobEvtFinish))
	assert.Equal(t, PrinterIdle, p.State())
	assert.Equal(t, JobID(0), p.processingJob)
}
