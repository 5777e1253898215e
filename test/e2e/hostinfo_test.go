package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deployd/deploy-agent/test/e2e"
)

const cachedFacts = `{"hostname":"web-1","ec2_local_ipv4":"10.0.0.1","ec2_instance_id":"i-cached","deploy_service_combined":"web,api"}`

var _ = Describe("Resolving host info", func() {
	var testContext e2e.TestContext

	BeforeEach(func() {
		testContext = e2e.CreateTestContext(GinkgoT().TempDir(), binary)
	})

	When("the inventory cache is up to date", func() {
		BeforeEach(func() {
			err := testContext.Setup(e2e.Host{
				CachedFacts:      cachedFacts,
				FreshFacts:       `{}`,
				NormandieHealthy: true,
				KnoxHealthy:      true,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should print the cached facts", func() {
			info, err := testContext.HostInfo()
			Expect(err).NotTo(HaveOccurred())

			Expect(info).To(HaveKeyWithValue("hostname", "web-1"))
			Expect(info).To(HaveKeyWithValue("ip", "10.0.0.1"))
			Expect(info).To(HaveKeyWithValue("instanceId", "i-cached"))
			Expect(info).To(HaveKeyWithValue("hostGroups", ConsistOf("web", "api")))
			Expect(info).To(HaveKeyWithValue("normandieStatus", "OK"))
			Expect(info).To(HaveKeyWithValue("knoxStatus", "OK"))
		})
	})

	When("the cached instance id is missing", func() {
		BeforeEach(func() {
			err := testContext.Setup(e2e.Host{
				CachedFacts:      `{"hostname":"web-1","ec2_local_ipv4":"10.0.0.1","ec2_instance_id":""}`,
				FreshFacts:       `{"ec2_instance_id":"i-fresh"}`,
				NormandieHealthy: true,
				KnoxHealthy:      true,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should use the no-cache value", func() {
			info, err := testContext.HostInfo()
			Expect(err).NotTo(HaveOccurred())

			Expect(info).To(HaveKeyWithValue("instanceId", "i-fresh"))
		})
	})

	When("running in the fleet", func() {
		BeforeEach(func() {
			err := testContext.Setup(e2e.Host{
				CachedFacts:      `{"hostname":"web-1","ec2_local_ipv4":"10.0.0.1","ec2_instance_id":"i-1","ec2_tags":{"Name":"web-1"},"ec2_placement_availability_zone":"us-east-1a"}`,
				FreshFacts:       `{}`,
				NormandieHealthy: true,
				KnoxHealthy:      true,
				Fleet:            true,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should resolve placement and tags", func() {
			info, err := testContext.HostInfo()
			Expect(err).NotTo(HaveOccurred())

			Expect(info).To(HaveKeyWithValue("availabilityZone", "us-east-1a"))
			Expect(info).To(HaveKeyWithValue("ec2Tags", HaveKeyWithValue("Name", "web-1")))
		})
	})

	When("a security tool is down", func() {
		BeforeEach(func() {
			err := testContext.Setup(e2e.Host{
				CachedFacts:      cachedFacts,
				FreshFacts:       `{}`,
				NormandieHealthy: true,
				KnoxHealthy:      false,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should report it without failing", func() {
			info, err := testContext.HostInfo()
			Expect(err).NotTo(HaveOccurred())

			Expect(info).To(HaveKeyWithValue("normandieStatus", "OK"))
			Expect(info).To(HaveKeyWithValue("knoxStatus", "ERROR"))
		})
	})

	When("facter is broken", func() {
		BeforeEach(func() {
			err := testContext.Setup(e2e.Host{FacterFails: true})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fail", func() {
			info, err := testContext.HostInfo()
			Expect(err).To(HaveOccurred())

			Expect(info).To(BeEmpty())
		})
	})

	When("the hostname can't be resolved", func() {
		BeforeEach(func() {
			err := testContext.Setup(e2e.Host{
				CachedFacts: `{"ec2_instance_id":"i-1"}`,
				FreshFacts:  `{}`,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should print what it found and fail", func() {
			info, err := testContext.HostInfo()
			Expect(err).To(HaveOccurred())

			Expect(info).To(HaveKeyWithValue("instanceId", "i-1"))
		})
	})
})
