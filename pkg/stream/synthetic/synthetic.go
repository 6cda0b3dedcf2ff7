// Package synthetic generates frames for sim:// stream URLs.
//
// Query parameters:
//
//	fps         frames per second, 0 produces frames as fast as they are read
//	width       frame width in pixels (default 64)
//	height      frame height in pixels (default 48)
//	frames      number of frames before io.EOF, 0 for an endless stream
//	fail_every  every Nth read fails with ErrReadFailed, 0 disables
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/quartz"

	"vistara-analytics/pkg/models"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/stream"
)

const Scheme = "sim"

var ErrReadFailed = errors.New("synthetic read failure")

// Service implements ports.StreamService for the sim scheme.
type Service struct {
	clock quartz.Clock
}

// New creates a synthetic stream provider.
func New(clock quartz.Clock) *Service {
	return &Service{clock: clock}
}

type params struct {
	fps       int
	width     int
	height    int
	frames    uint64
	failEvery uint64
}

func parse(rawURL string) (params, error) {
	p := params{width: 64, height: 48}

	u, err := url.Parse(rawURL)
	if err != nil {
		return p, err
	}

	if u.Scheme != Scheme {
		return p, fmt.Errorf("scheme %q is not %q", u.Scheme, Scheme)
	}

	q := u.Query()

	ints := []struct {
		key string
		dst *int
	}{{"fps", &p.fps}, {"width", &p.width}, {"height", &p.height}}
	for _, kv := range ints {
		if v := q.Get(kv.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return p, fmt.Errorf("invalid %s %q", kv.key, v)
			}

			*kv.dst = n
		}
	}

	uints := []struct {
		key string
		dst *uint64
	}{{"frames", &p.frames}, {"fail_every", &p.failEvery}}
	for _, kv := range uints {
		if v := q.Get(kv.key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return p, fmt.Errorf("invalid %s %q", kv.key, v)
			}

			*kv.dst = n
		}
	}

	if p.width == 0 || p.height == 0 {
		return p, fmt.Errorf("frame size %dx%d is empty", p.width, p.height)
	}

	return p, nil
}

// Open implements ports.StreamService.
func (s *Service) Open(_ context.Context, rawURL string, channel int) (ports.FrameSource, error) {
	p, err := parse(rawURL)
	if err != nil {
		return nil, &stream.PermanentError{URL: rawURL, Err: err}
	}

	src := &source{clock: s.clock, params: p, channel: channel}
	if p.fps > 0 {
		src.ticker = s.clock.NewTicker(time.Second/time.Duration(p.fps), "synthetic", "frame")
	}

	return src, nil
}

type source struct {
	params
	clock   quartz.Clock
	ticker  *quartz.Ticker
	channel int
	reads   uint64
	seq     uint64
}

func (s *source) Next(ctx context.Context) (*models.Frame, error) {
	if s.frames > 0 && s.seq >= s.frames {
		return nil, io.EOF
	}

	if s.ticker != nil {
		select {
		case <-s.ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.reads++
	if s.failEvery > 0 && s.reads%s.failEvery == 0 {
		return nil, ErrReadFailed
	}

	s.seq++

	pixels := make([]byte, s.width*s.height)
	for i := range pixels {
		pixels[i] = byte(uint64(i) + s.seq*7 + uint64(s.channel)*31)
	}

	return &models.Frame{
		Channel:    s.channel,
		Seq:        s.seq,
		Width:      s.width,
		Height:     s.height,
		Pixels:     pixels,
		CapturedAt: s.clock.Now(),
	}, nil
}

func (s *source) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}

	return nil
}
