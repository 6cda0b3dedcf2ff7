package delegate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	g "github.com/onsi/gomega"
	"go.uber.org/atomic"

	"vistara-analytics/pkg/accel"
	"vistara-analytics/pkg/delegate"
	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/fleet"
	"vistara-analytics/pkg/models"
)

type fakeSDK struct {
	model *fakeModel
}

func (s *fakeSDK) OpenDevice(id int) (accel.Handle, error) { return fakeHandle{id: id}, nil }

func (s *fakeSDK) LoadModel(_ accel.Handle, path string) (accel.Model, error) {
	s.model.path = path

	return s.model, nil
}

type fakeHandle struct{ id int }

func (h fakeHandle) Info() accel.DeviceInfo { return accel.DeviceInfo{ID: h.id} }
func (h fakeHandle) Close() error           { return nil }

type fakeModel struct {
	path     string
	maxBatch int
	output   accel.Output
	err      error
	delay    time.Duration

	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
	sizes    []int
	mu       sync.Mutex
}

func (m *fakeModel) Path() string     { return m.path }
func (m *fakeModel) MaxBatch() int    { return m.maxBatch }
func (m *fakeModel) Concurrency() int { return 1 }
func (m *fakeModel) Close() error     { return nil }

func (m *fakeModel) Invoke(_ context.Context, batch []accel.Input) ([]accel.Output, error) {
	m.calls.Inc()

	n := m.inflight.Inc()
	defer m.inflight.Dec()

	if n > m.peak.Load() {
		m.peak.Store(n)
	}

	m.mu.Lock()
	m.sizes = append(m.sizes, len(batch))
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	if m.err != nil {
		return nil, m.err
	}

	out := make([]accel.Output, len(batch))
	for i := range out {
		out[i] = m.output
	}

	return out, nil
}

func openCard(t *testing.T, m *fakeModel) *accel.CardContext {
	card, err := accel.OpenCard(&fakeSDK{model: m}, 0, 0)
	g.Expect(err).NotTo(g.HaveOccurred())
	t.Cleanup(func() { _ = card.Close() })

	return card
}

func frames(channel, n, w, h int) []*models.Frame {
	out := make([]*models.Frame, n)
	for i := range out {
		pixels := make([]byte, w*h)
		for j := range pixels {
			pixels[j] = byte(j)
		}

		out[i] = &models.Frame{Channel: channel, Seq: uint64(i + 1), Width: w, Height: h, Pixels: pixels}
	}

	return out
}

func TestParseModelType(t *testing.T) {
	g.RegisterTestingT(t)

	for in, want := range map[string]delegate.ModelType{
		"0":        delegate.ModelTypeFaceDetect,
		"1":        delegate.ModelTypeResNet50,
		"2":        delegate.ModelTypeYOLOv5,
		"yolov5":   delegate.ModelTypeYOLOv5,
		"ResNet50": delegate.ModelTypeResNet50,
	} {
		got, err := delegate.ParseModelType(in)
		g.Expect(err).NotTo(g.HaveOccurred())
		g.Expect(got).To(g.Equal(want))
	}

	_, err := delegate.ParseModelType("7")
	g.Expect(errors.Is(err, verrors.ErrUnknownModelType)).To(g.BeTrue())

	g.Expect(delegate.ModelTypeFaceDetect.WantsFeatures()).To(g.BeTrue())
	g.Expect(delegate.ModelTypeYOLOv5.WantsFeatures()).To(g.BeFalse())
	g.Expect(delegate.ModelType(9).String()).To(g.Equal("model_type(9)"))
}

func TestFaceDetector(t *testing.T) {
	g.RegisterTestingT(t)

	m := &fakeModel{output: accel.Output{
		0.5, 0.5, 0.0, 0.0, 0.9, // corners swapped, kept
		0.1, 0.1, 0.2, 0.2, 0.3, // below threshold
		0.4, 0.4, 0.4, 0.9, 0.8, // zero width, dropped
	}}
	card := openCard(t, m)

	det, err := delegate.NewDetector(delegate.ModelTypeFaceDetect, card, fleet.ModelConfig{Path: "face", BatchSize: 2, Threshold: 0.5})
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(det.Role()).To(g.Equal(delegate.RoleDetector))
	g.Expect(det.Name()).To(g.Equal("face_detect"))
	g.Expect(det.BatchSize()).To(g.Equal(2))

	results, err := det.Detect(context.Background(), frames(3, 2, 10, 4))
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(results).To(g.HaveLen(2))

	r := results[1]
	g.Expect(r.Channel).To(g.Equal(3))
	g.Expect(r.Seq).To(g.Equal(uint64(2)))
	g.Expect(r.Boxes).To(g.Equal([]models.BBox{{X1: 0, Y1: 0, X2: 5, Y2: 2, Score: 0.9}}))
	g.Expect(r.Faces).To(g.HaveLen(1))
	g.Expect(r.Faces[0].Width).To(g.Equal(5))
	g.Expect(r.Faces[0].Pixels).To(g.Equal([]byte{0, 1, 2, 3, 4, 10, 11, 12, 13, 14}))
}

func TestCrop_releasedFrame(t *testing.T) {
	g.RegisterTestingT(t)

	f := frames(0, 1, 4, 4)[0]
	f.Release()

	crop := delegate.Crop(f, models.BBox{X2: 2, Y2: 2})
	g.Expect(crop.Pixels).To(g.BeNil())
	g.Expect(crop.Width).To(g.Equal(2))
}

func TestClassifier(t *testing.T) {
	g.RegisterTestingT(t)

	m := &fakeModel{output: accel.Output{0.1, 3, 0.2}}
	card := openCard(t, m)

	det, err := delegate.NewDetector(delegate.ModelTypeResNet50, card, fleet.ModelConfig{Path: "resnet"})
	g.Expect(err).NotTo(g.HaveOccurred())

	results, err := det.Detect(context.Background(), frames(0, 1, 2, 2))
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(results[0].Classification).NotTo(g.BeNil())
	g.Expect(results[0].Classification.ClassID).To(g.Equal(1))
	g.Expect(results[0].Classification.Score).To(g.BeNumerically("~", 0.8962, 0.001))
}

func TestYOLODetector(t *testing.T) {
	g.RegisterTestingT(t)

	m := &fakeModel{output: accel.Output{
		0.5, 0.5, 0.5, 0.5, 0.9, 1.0, // kept
		0.5, 0.5, 0.5, 0.375, 0.8, 1.0, // overlaps the first, suppressed
		0.125, 0.125, 0.125, 0.125, 0.7, 1.0, // separate, kept
		0.9, 0.9, 0.125, 0.125, 0.2, 1.0, // below threshold
	}}
	card := openCard(t, m)

	det, err := delegate.NewDetector(delegate.ModelTypeYOLOv5, card,
		fleet.ModelConfig{Path: "yolo", Threshold: 0.5, NMSThreshold: 0.45})
	g.Expect(err).NotTo(g.HaveOccurred())

	results, err := det.Detect(context.Background(), frames(0, 1, 100, 100))
	g.Expect(err).NotTo(g.HaveOccurred())

	boxes := results[0].Boxes
	g.Expect(boxes).To(g.HaveLen(2))
	g.Expect(boxes[0]).To(g.Equal(models.BBox{X1: 25, Y1: 25, X2: 75, Y2: 75, Score: 0.9}))
	g.Expect(boxes[1]).To(g.Equal(models.BBox{X1: 6, Y1: 6, X2: 18, Y2: 18, Score: 0.7}))
}

func TestIoU(t *testing.T) {
	g.RegisterTestingT(t)

	a := models.BBox{X2: 10, Y2: 10}
	g.Expect(delegate.IoU(a, a)).To(g.Equal(float32(1)))
	g.Expect(delegate.IoU(a, models.BBox{X1: 20, Y1: 20, X2: 30, Y2: 30})).To(g.BeZero())
	g.Expect(delegate.IoU(a, models.BBox{X1: 5, X2: 15, Y2: 10})).To(g.BeNumerically("~", 1.0/3, 1e-6))
}

func TestFeatureExtractor(t *testing.T) {
	g.RegisterTestingT(t)

	m := &fakeModel{output: accel.Output{3, 4}}
	card := openCard(t, m)

	ext, err := delegate.NewFeatureExtractor(card, fleet.ModelConfig{Path: "feature"})
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(ext.Role()).To(g.Equal(delegate.RoleFeature))

	vectors, err := ext.Extract(context.Background(), []models.FaceCrop{{Channel: 2, Seq: 5}})
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(vectors).To(g.HaveLen(1))
	g.Expect(vectors[0].Channel).To(g.Equal(2))
	g.Expect(vectors[0].Values).To(g.Equal([]float32{0.6, 0.8}))
}

func TestDetector_failureIsDelegateInvocationError(t *testing.T) {
	g.RegisterTestingT(t)

	boom := errors.New("boom")
	card := openCard(t, &fakeModel{err: boom})

	det, err := delegate.NewDetector(delegate.ModelTypeFaceDetect, card, fleet.ModelConfig{Path: "face"})
	g.Expect(err).NotTo(g.HaveOccurred())

	_, err = det.Detect(context.Background(), frames(4, 3, 2, 2))

	var invErr *verrors.DelegateInvocationError
	g.Expect(errors.As(err, &invErr)).To(g.BeTrue())
	g.Expect(invErr.Channel).To(g.Equal(4))
	g.Expect(invErr.Batch).To(g.Equal(3))
	g.Expect(errors.Is(err, boom)).To(g.BeTrue())

	_, err = det.Detect(context.Background(), nil)
	g.Expect(errors.Is(err, verrors.ErrEmptyBatch)).To(g.BeTrue())
}

func TestDetector_chunksByMaxBatch(t *testing.T) {
	g.RegisterTestingT(t)

	m := &fakeModel{maxBatch: 2, output: accel.Output{}}
	card := openCard(t, m)

	det, err := delegate.NewDetector(delegate.ModelTypeFaceDetect, card, fleet.ModelConfig{Path: "face", BatchSize: 8})
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(det.BatchSize()).To(g.Equal(2))

	results, err := det.Detect(context.Background(), frames(0, 5, 2, 2))
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(results).To(g.HaveLen(5))
	g.Expect(m.sizes).To(g.Equal([]int{2, 2, 1}))
}

func TestDetector_serialisesConcurrentCallers(t *testing.T) {
	g.RegisterTestingT(t)

	m := &fakeModel{output: accel.Output{}, delay: time.Millisecond}
	card := openCard(t, m)

	det, err := delegate.NewDetector(delegate.ModelTypeFaceDetect, card, fleet.ModelConfig{Path: "face"})
	g.Expect(err).NotTo(g.HaveOccurred())

	ext, err := delegate.NewFeatureExtractor(card, fleet.ModelConfig{Path: "face"})
	g.Expect(err).NotTo(g.HaveOccurred())

	var wg sync.WaitGroup
	for ch := 0; ch < 8; ch++ {
		wg.Add(2)

		go func(ch int) {
			defer wg.Done()

			_, err := det.Detect(context.Background(), frames(ch, 1, 2, 2))
			g.Expect(err).NotTo(g.HaveOccurred())
		}(ch)

		go func(ch int) {
			defer wg.Done()

			_, err := ext.Extract(context.Background(), []models.FaceCrop{{Channel: ch}})
			g.Expect(err).NotTo(g.HaveOccurred())
		}(ch)
	}

	wg.Wait()

	g.Expect(m.calls.Load()).To(g.Equal(int32(16)))
	g.Expect(m.peak.Load()).To(g.Equal(int32(1)))
}
