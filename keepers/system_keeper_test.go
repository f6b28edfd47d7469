package keepers

import (
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/testutil"
)

var _ = Describe("SystemKeeper", func() {
	var cfg *config.AppConfig
	var err error
	var db *storage.Badger
	var sk *SystemKeeper

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		db = testutil.GetDB(cfg)
		sk = NewSystemKeeper(db.NewTx(true, true))
	})

	AfterEach(func() {
		Expect(db.Close()).To(BeNil())
		testutil.Teardown(cfg)
	})

	Describe(".GetChangeSeq", func() {
		It("should return 0 when no id has been allocated", func() {
			seq, err := sk.GetChangeSeq()
			Expect(err).To(BeNil())
			Expect(seq).To(Equal(int64(0)))
		})
	})

	Describe(".NextChangeID", func() {
		It("should allocate dense, strictly increasing ids starting at 1", func() {
			for want := int64(1); want <= 5; want++ {
				id, err := sk.NextChangeID()
				Expect(err).To(BeNil())
				Expect(id).To(Equal(want))
			}

			seq, err := sk.GetChangeSeq()
			Expect(err).To(BeNil())
			Expect(seq).To(Equal(int64(5)))
		})

		It("should never hand the same id to concurrent callers", func() {
			const callers = 50

			ids := make(chan int64, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					id, err := sk.NextChangeID()
					Expect(err).To(BeNil())
					ids <- id
				}()
			}
			wg.Wait()
			close(ids)

			seen := map[int64]bool{}
			for id := range ids {
				Expect(seen[id]).To(BeFalse(), "id %d allocated twice", id)
				seen[id] = true
			}
			Expect(seen).To(HaveLen(callers))

			seq, err := sk.GetChangeSeq()
			Expect(err).To(BeNil())
			Expect(seq).To(Equal(int64(callers)))
		})
	})
})
