package ippsrv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_LifecyclePendingAvailableInstalled(t *testing.T) {
	r := NewResource(1, ResourceStaticICC)
	ctx := context.Background()
	assert.Equal(t, ResourcePending, r.State())

	require.NoError(t, r.sm.Event(ctx, resourceEvtDataSent))
	assert.Equal(t, ResourceAvailable, r.State())

	require.NoError(t, r.sm.Event(ctx, resourceEvtInstall))
	assert.Equal(t, ResourceInstalled, r.State())
}

func TestResource_CancelWhileInUseDefersUntilRelease(t *testing.T) {
	r := NewResource(1, ResourceTemplatePrinter)
	ctx := context.Background()
	r.UseCount = 2

	require.NoError(t, r.Cancel(ctx))
	assert.Equal(t, ResourcePending, r.State(), "cancel must defer while UseCount > 0")
	assert.True(t, r.cancelPending)

	r.Release(ctx)
	assert.Equal(t, ResourcePending, r.State(), "still in use after one release")

	r.Release(ctx)
	assert.Equal(t, ResourceCanceled, r.State(), "deferred cancel applies once UseCount reaches zero")
}

func TestResource_CancelWithNoUseIsImmediate(t *testing.T) {
	r := NewResource(1, ResourceStaticImage)
	ctx := context.Background()
	require.NoError(t, r.Cancel(ctx))
	assert.Equal(t, ResourceCanceled, r.State())
}
