package kv_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/paramfabric/communicator/kv"
)

func TestKV(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ValueBlock Suite")
}

var _ = Describe("ValueBlock", func() {
	schema := []kv.Slot{
		{Name: "Param", Width: 2, Init: kv.ConstantInitializer{Value: 0}},
		{Name: "Moment1", Width: 2, Init: kv.ConstantInitializer{Value: 0}},
	}

	Describe("Init/Get round-trip", func() {
		var block *kv.ValueBlock

		BeforeEach(func() {
			block = kv.NewValueBlock(schema, nil)
		})

		It("creates an entry with count=1 and the initializer's values", func() {
			Expect(block.Init([]uint64{7})).To(Succeed())
			vals, err := block.Get([]uint64{7}, []string{"Param"})
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(HaveLen(1))
			Expect(vals[0][0]).To(Equal([]float32{0, 0}))
		})

		It("fails with a contract violation on double Init", func() {
			Expect(block.Init([]uint64{7})).To(Succeed())
			err := block.Init([]uint64{7})
			Expect(err).To(HaveOccurred())
		})

		It("round-trips Set/Get (spec §8 invariant 7)", func() {
			Expect(block.Init([]uint64{1})).To(Succeed())
			want := [][]float32{{1, 2}, {3, 4}}
			Expect(block.Set(1, []string{"Param", "Moment1"}, want)).To(Succeed())
			got, err := block.Get([]uint64{1}, []string{"Param", "Moment1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got[0]).To(Equal(want))
		})

		It("fails lookups for missing keys", func() {
			_, err := block.Get([]uint64{999}, []string{"Param"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("admission (spec §8 invariant 6, scenario S5)", func() {
		It("is sticky once a count-filter threshold is reached", func() {
			policy, err := kv.ParseAdmission("count_filter:2")
			Expect(err).NotTo(HaveOccurred())
			block := kv.NewValueBlock(schema, policy)

			Expect(block.InitFromInitializer(7)).To(Succeed())
			admitted, _ := block.GetEntry(7)
			Expect(admitted).To(BeFalse())

			Expect(block.InitFromInitializer(7)).To(Succeed()) // count -> 2
			admitted, _ = block.GetEntry(7)
			Expect(admitted).To(BeTrue())

			Expect(block.InitFromInitializer(7)).To(Succeed()) // stays admitted
			admitted, _ = block.GetEntry(7)
			Expect(admitted).To(BeTrue())
		})

		It("admits everything under the none policy", func() {
			block := kv.NewValueBlock(schema, nil)
			Expect(block.Init([]uint64{1})).To(Succeed())
			admitted, _ := block.GetEntry(1)
			Expect(admitted).To(BeTrue())
		})
	})

	Describe("barrier timeout style concurrency", func() {
		It("tolerates concurrent Get and Update on the same key", func() {
			block := kv.NewValueBlock(schema, nil)
			Expect(block.Init([]uint64{1})).To(Succeed())

			done := make(chan struct{})
			go func() {
				for i := 0; i < 200; i++ {
					_ = block.Update(1)
				}
				close(done)
			}()
			for i := 0; i < 200; i++ {
				_, _ = block.Get([]uint64{1}, []string{"Param"})
			}
			<-done
		})
	})
})
