package reporter_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	g "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/reporter"
	"vistara-analytics/pkg/stats"
	"vistara-analytics/pkg/timer"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type recordingObserver struct {
	mu    sync.Mutex
	snaps []stats.Snapshot
}

func (o *recordingObserver) ObserveStats(s stats.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.snaps = append(o.snaps, s)
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.snaps)
}

func TestReporter_lineFormat(t *testing.T) {
	g.RegisterTestingT(t)

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)).MustWait(context.Background())

	reg := stats.NewRegistry(2)
	out := &bytes.Buffer{}

	r := reporter.New(reporter.Options{Registry: reg, Clock: clock, Out: out})

	r.Tick()
	g.Expect(out.String()).To(g.Equal(
		"[2024-03-09:14:05:07] det ([SUCCESS: 0/0]total fps =0.0,ch=0: speed=0.0) feature ([SUCCESS: 0/0]total fps=0.0,ch=0: speed=0.0)\n"))

	reg.AddDecoded(stats.StageDetection, 0, 30)
	reg.AddProcessed(stats.StageDetection, 0, 25)
	reg.AddDecoded(stats.StageDetection, 1, 20)
	reg.AddProcessed(stats.StageDetection, 1, 20)
	reg.AddDecoded(stats.StageFeature, 1, 9)
	reg.AddProcessed(stats.StageFeature, 1, 8)

	out.Reset()
	clock.Advance(2 * time.Second).MustWait(context.Background())
	r.Tick()

	g.Expect(out.String()).To(g.Equal(
		"[2024-03-09:14:05:09] det ([SUCCESS: 45/50]total fps =22.5,ch=0: speed=12.5) feature ([SUCCESS: 8/9]total fps=4.0,ch=0: speed=0.0)\n"))

	latest := r.Latest()
	g.Expect(latest.DetectionFPS).To(g.BeNumerically("~", 22.5, 1e-9))
	g.Expect(latest.Channels[1].FeatureFPS).To(g.BeNumerically("~", 4.0, 1e-9))
}

func TestReporter_allChannels(t *testing.T) {
	g.RegisterTestingT(t)

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)).MustWait(context.Background())

	reg := stats.NewRegistry(2)
	out := &bytes.Buffer{}

	r := reporter.New(reporter.Options{Registry: reg, Clock: clock, Out: out, AllChannels: true})
	r.Tick()

	reg.AddProcessed(stats.StageDetection, 1, 3)
	clock.Advance(time.Second).MustWait(context.Background())
	out.Reset()
	r.Tick()

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	g.Expect(lines).To(g.HaveLen(3))
	g.Expect(string(lines[1])).To(g.Equal("[2024-03-09:14:05:08] ch=0 det speed=0.0 feature speed=0.0"))
	g.Expect(string(lines[2])).To(g.Equal("[2024-03-09:14:05:08] ch=1 det speed=3.0 feature speed=0.0"))
}

func TestReporter_scheduledOnTimerQueue(t *testing.T) {
	g.RegisterTestingT(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	queue := timer.NewQueue(clock, logrus.NewEntry(logrus.New()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.RunLoop(ctx)
	}()

	obs := &recordingObserver{}
	out := &syncBuffer{}

	r := reporter.New(reporter.Options{
		Registry:  stats.NewRegistry(1),
		Timers:    queue,
		Clock:     clock,
		Out:       out,
		Observers: []ports.StatsObserver{obs},
	})
	g.Expect(r.Start()).To(g.Succeed())

	clock.Advance(time.Second).MustWait(ctx)
	clock.Advance(time.Second).MustWait(ctx)

	g.Expect(obs.count()).To(g.Equal(2))
	g.Expect(bytes.Count([]byte(out.String()), []byte("\n"))).To(g.Equal(2))

	r.Stop()
	g.Expect(queue.Count()).To(g.BeZero())

	queue.Close()
	cancel()
	<-done
}
