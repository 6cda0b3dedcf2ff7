package command_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	g "github.com/onsi/gomega"

	"vistara-analytics/internal/command"
	"vistara-analytics/internal/version"
	verrors "vistara-analytics/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd, err := command.NewRootCommand()
	g.Expect(err).NotTo(g.HaveOccurred())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-output", "stderr", "--env-file", filepath.Join(t.TempDir(), "none.env")))

	err = cmd.Execute()

	return out.String(), err
}

func writeFleet(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	g.Expect(os.WriteFile(path, []byte(body), 0o600)).To(g.Succeed())

	return path
}

func TestVersion(t *testing.T) {
	g.RegisterTestingT(t)

	out, err := execute(t, "version", "--short")
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(strings.TrimSpace(out)).To(g.Equal(version.Version))
}

func TestVersion_long(t *testing.T) {
	g.RegisterTestingT(t)

	out, err := execute(t, "version", "--long")
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(out).To(g.HavePrefix(version.PackageName + " " + version.Version + "\n"))
	g.Expect(out).To(g.ContainSubstring("go:     " + runtime.Version()))

	_, err = execute(t, "version", "--long", "--short")
	g.Expect(err).To(g.HaveOccurred())
}

func TestValidate(t *testing.T) {
	g.RegisterTestingT(t)

	path := writeFleet(t, "fleet.yaml", `
cards:
  - dev_id: 0
    cameras:
      - address: sim://a
        chan_num: 2
    model_names: [face]
models:
  - name: face
    path: face.bmodel
`)

	out, err := execute(t, "validate", "--config", path)
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(out).To(g.ContainSubstring("1 cards, 2 channels, 1 models"))
}

func TestRun_underscoreFlags(t *testing.T) {
	g.RegisterTestingT(t)

	path := writeFleet(t, "fleet.json", `{"cards": [{"dev_id": 0, "cameras": [{"address": "sim://a"}], "model_names": ["m"]}], "models": [{"name": "m", "path": "m.bmodel"}]}`)

	cmd, err := command.NewRootCommand()
	g.Expect(err).NotTo(g.HaveOccurred())

	run, _, err := cmd.Find([]string{"run"})
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(run.Flags().Parse([]string{"--model_type", "2", "--feat_delay", "40", "--config", path})).To(g.Succeed())

	modelType, err := run.Flags().GetInt("model-type")
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(modelType).To(g.Equal(2))

	delay, err := run.Flags().GetInt("feat-delay")
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(delay).To(g.Equal(40))
}

func TestValidate_invalidFleet(t *testing.T) {
	g.RegisterTestingT(t)

	path := writeFleet(t, "fleet.json", `{"cards": [], "models": []}`)

	_, err := execute(t, "validate", "--config", path)

	var cfgErr *verrors.ConfigurationError
	g.Expect(errors.As(err, &cfgErr)).To(g.BeTrue())
	g.Expect(cfgErr.Path).To(g.Equal(path))
	g.Expect(errors.Is(err, verrors.ErrNoCards)).To(g.BeTrue())
}
