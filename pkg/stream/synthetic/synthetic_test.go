package synthetic_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/stream"
	"vistara-analytics/pkg/stream/synthetic"
)

func TestSource_finiteStream(t *testing.T) {
	svc := synthetic.New(quartz.NewMock(t))

	src, err := svc.Open(context.Background(), "sim://lobby?frames=3&width=4&height=2", 7)
	require.NoError(t, err)
	defer src.Close()

	for i := 1; i <= 3; i++ {
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7, f.Channel)
		assert.Equal(t, uint64(i), f.Seq)
		assert.Len(t, f.Pixels, 8)
	}

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSource_failEvery(t *testing.T) {
	svc := synthetic.New(quartz.NewMock(t))

	src, err := svc.Open(context.Background(), "sim://x?fail_every=2", 0)
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, synthetic.ErrReadFailed)

	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)
}

func TestSource_pacedByClock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	svc := synthetic.New(mClock)

	src, err := svc.Open(ctx, "sim://x?fps=10", 0)
	require.NoError(t, err)
	defer src.Close()

	done := make(chan error, 1)
	go func() {
		_, err := src.Next(ctx)
		done <- err
	}()

	mClock.Advance(100 * time.Millisecond).MustWait(ctx)
	assert.NoError(t, <-done)
}

func TestOpen_badURLIsPermanent(t *testing.T) {
	svc := synthetic.New(quartz.NewReal())

	_, err := svc.Open(context.Background(), "sim://x?width=abc", 0)
	assert.True(t, stream.IsPermanent(err))

	_, err = svc.Open(context.Background(), "sim://x?width=0", 0)
	assert.True(t, stream.IsPermanent(err))
}

func TestMux(t *testing.T) {
	mux := stream.NewMux()
	mux.Register(synthetic.Scheme, synthetic.New(quartz.NewReal()))

	assert.Equal(t, []string{"sim"}, mux.Schemes())

	src, err := mux.Open(context.Background(), "sim://a?frames=1", 0)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = mux.Open(context.Background(), "rtsp://camera/1", 0)
	assert.True(t, stream.IsPermanent(err))
	assert.True(t, errors.Is(err, verrors.ErrUnsupportedScheme))
}
