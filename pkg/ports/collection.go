package ports

import (
	"github.com/coder/quartz"
	"github.com/spf13/afero"

	"vistara-analytics/pkg/accel"
)

// Collection groups the adapters an orchestrator runs on.
type Collection struct {
	SDK            accel.SDK
	Streams        StreamService
	Results        ResultRepository
	FrameObservers []FrameObserver
	StatsObservers []StatsObserver
	FileSystem     afero.Fs
	Clock          quartz.Clock
}
