//go:build e2e

package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/marathon"
)

const autoCPUEnv = `
name: analysis
environment:
  components:
    engine:
      machine: worker
      cpu: auto
      count: 3
      image: registry:5000/engine
      cmd: /bin/engine
    monitor:
      machine: worker
      cpu: auto
      count: 2
      image: registry:5000/monitor
      cmd: /bin/monitor
      attach_volume: no
`

const autoCountEnv = `
name: analysis
environment:
  components:
    engine:
      machine: worker
      cpu: 0.4
      count: auto
      image: registry:5000/engine
      cmd: /bin/engine
`

var _ = Describe("Environment on a running cluster", func() {
	var w *world

	BeforeEach(func() {
		w = newWorld()
		w.provision(2)
	})

	It("splits node cpu between auto-cpu components", func() {
		w.scheduler.AddSlave("worker", "ip-10-2-1-11", 4, 8000)
		w.scheduler.AddSlave("worker", "ip-10-2-1-12", 4, 8000)

		_, err := w.launcher().Launch(context.Background(), parseEnv(autoCPUEnv))
		Expect(err).NotTo(HaveOccurred())

		Expect(w.scheduler.AppNames()).To(Equal([]string{"engine", "monitor"}))
		for name, instances := range map[string]int{"engine": 3, "monitor": 2} {
			app := w.scheduler.App(name)
			Expect(app.CPUs).To(BeNumerically("~", 2.0, 1e-9))
			Expect(app.Mem).To(BeNumerically("~", 4000.0, 1e-9))
			Expect(app.Instances).To(Equal(instances))
			Expect(app.Constraints).To(Equal([][]string{{"name", "CLUSTER", "worker"}}))
		}
		Expect(w.scheduler.App("monitor").Container.Volumes).To(BeEmpty())
	})

	It("fills every node with auto-count instances", func() {
		w.scheduler.AddSlave("worker", "ip-10-2-1-11", 1, 1000)
		w.scheduler.AddSlave("worker", "ip-10-2-1-12", 1, 1000)

		_, err := w.launcher().Launch(context.Background(), parseEnv(autoCountEnv))
		Expect(err).NotTo(HaveOccurred())

		engine := w.scheduler.App("engine")
		Expect(engine.Instances).To(Equal(4))
		Expect(engine.CPUs).To(BeNumerically("~", 0.4, 1e-9))

		st, err := w.ctrl.Status(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Components).To(HaveKeyWithValue("engine", 4))
	})

	It("refuses to launch over a running component", func() {
		w.scheduler.AddSlave("worker", "ip-10-2-1-11", 1, 1000)
		w.scheduler.AddApp(marathon.App{ID: "engine", Instances: 1})

		_, err := w.launcher().Launch(context.Background(), parseEnv(autoCountEnv))
		Expect(errdefs.IsConfig(err)).To(BeTrue())
		Expect(w.scheduler.RequestsMatching("POST")).To(BeEmpty())
	})

	It("stops every component", func() {
		w.scheduler.AddSlave("worker", "ip-10-2-1-11", 1, 1000)
		l := w.launcher()
		_, err := l.Launch(context.Background(), parseEnv(autoCountEnv))
		Expect(err).NotTo(HaveOccurred())

		n, err := l.Destroy(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(w.scheduler.AppNames()).To(BeEmpty())
	})
})
