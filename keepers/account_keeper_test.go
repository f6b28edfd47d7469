package keepers

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/testutil"
	"github.com/reviewos/kit/types/state"
)

var _ = Describe("AccountKeeper", func() {
	var cfg *config.AppConfig
	var err error
	var db *storage.Badger
	var ak *AccountKeeper

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		db = testutil.GetDB(cfg)
		ak = NewAccountKeeper(db.NewTx(true, true))
	})

	AfterEach(func() {
		Expect(db.Close()).To(BeNil())
		testutil.Teardown(cfg)
	})

	Describe(".Get", func() {
		It("should return a bare account when the id is unknown", func() {
			account, err := ak.Get(404)
			Expect(err).To(BeNil())
			Expect(account.IsNil()).To(BeTrue())
		})

		It("should return the saved account", func() {
			saved := state.BareAccount()
			saved.ID = 3
			saved.Username = "alice"
			saved.Email = "alice@dev.test"
			Expect(ak.Save(saved)).To(BeNil())

			account, err := ak.Get(3)
			Expect(err).To(BeNil())
			Expect(account.Username).To(Equal("alice"))
			Expect(account.Email).To(Equal("alice@dev.test"))
			Expect(account.Active).To(BeTrue())
		})
	})

	Describe(".Register", func() {
		It("should allocate dense, strictly increasing ids starting at 1", func() {
			for want := int64(1); want <= 3; want++ {
				account := state.BareAccount()
				account.Username = "user"
				Expect(ak.Register(account)).To(BeNil())
				Expect(account.ID).To(Equal(want))
			}
		})

		It("should stamp CreatedOn when unset", func() {
			account := state.BareAccount()
			account.Username = "bob"
			Expect(ak.Register(account)).To(BeNil())
			Expect(account.CreatedOn).ToNot(BeZero())

			stored, err := ak.Get(account.ID)
			Expect(err).To(BeNil())
			Expect(stored.CreatedOn).To(Equal(account.CreatedOn))
		})
	})

	Describe(".List", func() {
		It("should return accounts in ascending id order", func() {
			for _, name := range []string{"carol", "dan", "erin"} {
				account := state.BareAccount()
				account.Username = name
				Expect(ak.Register(account)).To(BeNil())
			}

			accounts, err := ak.List()
			Expect(err).To(BeNil())
			Expect(accounts).To(HaveLen(3))
			Expect(accounts[0].Username).To(Equal("carol"))
			Expect(accounts[1].Username).To(Equal("dan"))
			Expect(accounts[2].Username).To(Equal("erin"))
		})
	})
})
