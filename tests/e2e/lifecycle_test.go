//go:build e2e

package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/clusterous/internal/cluster"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/destroy"
	"github.com/imamik/clusterous/internal/provisioning/instances"
)

var _ = Describe("Cluster lifecycle", func() {
	var w *world

	BeforeEach(func() {
		w = newWorld()
	})

	It("provisions, reports and terminates a cluster", func() {
		w.provision(3)

		st, err := w.ctrl.Status(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.State).To(Equal(cluster.StateRunning))
		Expect(st.Nodes).To(HaveKeyWithValue("worker", cluster.NodePool{Type: "c4.large", Count: 3}))
		Expect(st.Volume).NotTo(BeNil())
		Expect(st.Volume.Borrowed).To(BeFalse())

		Expect(w.ctrl.Terminate(context.Background(), destroy.Options{})).To(Succeed())
		counts := w.cloud.ResourceCounts()
		Expect(counts).To(HaveKeyWithValue("instances", 0))
		Expect(counts).To(HaveKeyWithValue("volumes", 0))

		_, err = w.store.Load()
		Expect(errdefs.IsNoActiveCluster(err)).To(BeTrue())
	})

	It("rejects a borrowed volume from another zone before launching anything", func() {
		w.cloud.AddVolume(cloud.Volume{ID: "vol-b", SizeGB: 20, Zone: "b", State: cloud.VolumeAvailable})

		err := w.ctrl.Provision(context.Background(), &provisioning.Request{
			ClusterName: "demo",
			VolumeID:    "vol-b",
			NodeGroups:  []provisioning.NodeGroup{{Role: "worker", InstanceType: "c4.large", Count: 1}},
		})
		Expect(errdefs.IsConfig(err)).To(BeTrue())
		Expect(w.cloud.CallCount("RunInstances")).To(BeZero())
		Expect(w.cloud.CallCount("AttachVolume")).To(BeZero())
	})

	It("keeps a created volume when asked to leave it", func() {
		w.provision(2)
		info, err := w.store.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(w.ctrl.Terminate(context.Background(), destroy.Options{LeaveVolume: true})).To(Succeed())

		counts := w.cloud.ResourceCounts()
		Expect(counts).To(HaveKeyWithValue("instances", 0))
		Expect(counts).To(HaveKeyWithValue("networks", 0))
		Expect(counts).To(HaveKeyWithValue("securityGroups", 0))
		Expect(w.cloud.Volume(info.VolumeID)).NotTo(BeNil())

		left, err := w.ctrl.ListVolumes(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(left).To(ConsistOf(HaveField("ID", info.VolumeID)))

		By("deleting the leftover volume")
		Expect(w.ctrl.DeleteVolume(context.Background(), info.VolumeID)).To(Succeed())
		Expect(w.cloud.Volume(info.VolumeID)).To(BeNil())
	})

	It("removes only the nodes that exist", func() {
		w.provision(3)

		removed, err := w.ctrl.RemoveNodes(context.Background(), 5, "worker")
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(3))

		workers, err := instances.ListRole(context.Background(), w.cloud, "demo", "worker")
		Expect(err).NotTo(HaveOccurred())
		Expect(workers).To(BeEmpty())
	})

	It("adds nodes to an existing role", func() {
		w.provision(1)

		added, err := w.ctrl.AddNodes(context.Background(), 2, "worker", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(added).To(Equal(2))

		st, err := w.ctrl.Status(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Nodes["worker"].Count).To(Equal(3))
	})

	It("terminates in the background", func() {
		w.provision(1)

		task, err := w.ctrl.StartTerminate(context.Background(), destroy.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(task.Name).To(Equal(cluster.TaskTerminate))

		done, err := w.ctrl.Wait(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(done.Err()).NotTo(HaveOccurred())
		Expect(done.State).To(Equal(cluster.TaskSucceeded))
		Expect(w.cloud.ResourceCounts()).To(HaveKeyWithValue("instances", 0))
	})
})
