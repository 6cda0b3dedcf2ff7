package plan_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vistara-analytics/internal/command/plan"
	"vistara-analytics/pkg/fleet"
	"vistara-analytics/pkg/orchestrator"
	"vistara-analytics/pkg/ports"
)

func TestPrint(t *testing.T) {
	fc, err := fleet.Parse([]byte(`{
  "cards": [
    {"dev_id": 4, "cameras": [{"address": "sim://a", "chan_num": 3}], "model_names": ["face"]},
    {"dev_id": 7, "model_names": ["face"]}
  ],
  "models": [{"name": "face", "path": "face.bmodel"}]
}`), "json")
	require.NoError(t, err)

	l := logrus.New()
	l.SetOutput(io.Discard)

	o, err := orchestrator.New(orchestrator.Config{Out: io.Discard}, fc, &ports.Collection{Clock: quartz.NewMock(t)}, logrus.NewEntry(l))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, plan.Print(&out, fc, o))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"CARD", "DEVICE", "CHANNELS", "MODEL", "URLS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "4", "[0,2)", "face", "sim://a,sim://a"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "7", "[2,3)", "face", "sim://a"}, strings.Fields(lines[2]))
}
