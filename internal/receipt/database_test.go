package receipt

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"
)

func newStoredReceipt(store, date string, createdAt time.Time) *Receipt {
	return &Receipt{
		Store:    Store{Name: store},
		Details:  Details{Date: date},
		Metadata: Metadata{CreatedAt: createdAt, FilePath: "u/f.jpg"},
	}
}

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	globalDoc := func(key string) map[string]any {
		var doc map[string]any
		err := db.db.View(func(tx *bbolt.Tx) error {
			data := tx.Bucket([]byte(globalBucketName)).Get([]byte(key))
			if data == nil {
				return nil
			}
			return json.Unmarshal(data, &doc)
		})
		Expect(err).NotTo(HaveOccurred())
		return doc
	}

	Describe("SaveReceipt", func() {
		var (
			userID  string
			receipt *Receipt
			err     error
		)

		BeforeEach(func() {
			userID = "user-abcdef123"
			receipt = newStoredReceipt("H-E-B", "2024-01-15", time.Now())
		})

		JustBeforeEach(func() {
			err = db.SaveReceipt(userID, receipt)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should assign the vendor and date ID", func() {
				Expect(receipt.ID).To(Equal("heb, 2024-01-15"))
			})

			It("should save the receipt for the user", func() {
				saved, getErr := db.GetReceipt(userID, "heb, 2024-01-15")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Store.Name).To(Equal("H-E-B"))
				Expect(saved.Metadata.UserID).To(Equal(userID))
			})

			It("should write a global copy keyed by a short user id", func() {
				doc := globalDoc("heb, 2024-01-15__user-a")
				Expect(doc).NotTo(BeNil())
				Expect(doc["user_id"]).To(Equal(userID))
				Expect(doc["document_id"]).To(Equal("heb, 2024-01-15"))
			})
		})

		When("the ID is already taken", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(userID, newStoredReceipt("H-E-B", "2024-01-15", time.Now()))).To(Succeed())
				Expect(db.SaveReceipt(userID, newStoredReceipt("H-E-B", "2024-01-15", time.Now()))).To(Succeed())
			})

			It("should append the next free suffix", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipt.ID).To(Equal("heb, 2024-01-15-3"))
			})
		})

		When("another user has the same ID", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt("other-user", newStoredReceipt("H-E-B", "2024-01-15", time.Now()))).To(Succeed())
			})

			It("should not suffix the ID", func() {
				Expect(receipt.ID).To(Equal("heb, 2024-01-15"))
			})
		})

		When("no user is given", func() {
			BeforeEach(func() {
				userID = ""
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("user id required")))
			})
		})

		When("saves run concurrently", func() {
			It("should give every receipt a distinct ID", func() {
				var wg sync.WaitGroup
				receipts := make([]*Receipt, 10)
				for i := range receipts {
					receipts[i] = newStoredReceipt("H-E-B", "2024-01-15", time.Now())
					wg.Add(1)
					go func(r *Receipt) {
						defer GinkgoRecover()
						defer wg.Done()
						Expect(db.SaveReceipt(userID, r)).To(Succeed())
					}(receipts[i])
				}
				wg.Wait()

				ids := map[string]bool{}
				for _, r := range receipts {
					ids[r.ID] = true
				}
				Expect(ids).To(HaveLen(10))
			})
		})
	})

	Describe("GetReceipt", func() {
		var (
			receiptID string
			receipt   *Receipt
			err       error
		)

		BeforeEach(func() {
			Expect(db.SaveReceipt("user-1", newStoredReceipt("Home Depot", "", time.Now()))).To(Succeed())
		})

		JustBeforeEach(func() {
			receipt, err = db.GetReceipt("user-1", receiptID)
		})

		When("receipt exists", func() {
			BeforeEach(func() {
				receiptID = "home-depot, unknown-date"
			})

			It("should return the correct receipt", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipt.ID).To(Equal(receiptID))
			})
		})

		When("receipt does not exist", func() {
			BeforeEach(func() {
				receiptID = "nonexistent"
			})

			It("returns ErrNotFound", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})

		When("the user has no receipts", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetReceipt("nobody", "home-depot, unknown-date")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("ListReceipts", func() {
		var (
			receipts []*Receipt
			err      error
		)

		JustBeforeEach(func() {
			receipts, err = db.ListReceipts("user-1")
		})

		When("receipts exist", func() {
			BeforeEach(func() {
				base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
				Expect(db.SaveReceipt("user-1", newStoredReceipt("H-E-B", "2024-01-10", base))).To(Succeed())
				Expect(db.SaveReceipt("user-1", newStoredReceipt("H-E-B", "2024-01-12", base.Add(2*time.Hour)))).To(Succeed())
				Expect(db.SaveReceipt("user-1", newStoredReceipt("Home Depot", "2024-01-11", base.Add(time.Hour)))).To(Succeed())
				Expect(db.SaveReceipt("user-2", newStoredReceipt("H-E-B", "2024-01-13", base))).To(Succeed())
			})

			It("should return the user's receipts newest first", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(HaveLen(3))
				Expect(receipts[0].ID).To(Equal("heb, 2024-01-12"))
				Expect(receipts[1].ID).To(Equal("home-depot, 2024-01-11"))
				Expect(receipts[2].ID).To(Equal("heb, 2024-01-10"))
			})
		})

		When("no receipts exist", func() {
			It("should return an empty list", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(BeEmpty())
				Expect(receipts).NotTo(BeNil())
			})
		})
	})

	Describe("DeleteReceipt", func() {
		var (
			receiptID string
			err       error
		)

		BeforeEach(func() {
			Expect(db.SaveReceipt("user-abcdef", newStoredReceipt("H-E-B", "2024-01-15", time.Now()))).To(Succeed())
		})

		JustBeforeEach(func() {
			err = db.DeleteReceipt("user-abcdef", receiptID)
		})

		When("receipt exists", func() {
			BeforeEach(func() {
				receiptID = "heb, 2024-01-15"
			})

			It("should remove the receipt", func() {
				Expect(err).NotTo(HaveOccurred())
				_, getErr := db.GetReceipt("user-abcdef", receiptID)
				Expect(errors.Is(getErr, ErrNotFound)).To(BeTrue())
			})

			It("should remove the global copy", func() {
				Expect(globalDoc("heb, 2024-01-15__user-a")).To(BeNil())
			})
		})

		When("receipt does not exist", func() {
			BeforeEach(func() {
				receiptID = "nonexistent"
			})

			It("returns ErrNotFound", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("NewBoltDB", func() {
		When("the database is reopened", func() {
			It("should keep saved receipts", func() {
				Expect(db.SaveReceipt("user-1", newStoredReceipt("H-E-B", "2024-01-15", time.Now()))).To(Succeed())
				Expect(db.Close()).To(Succeed())

				var err error
				db, err = NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())
				_, err = db.GetReceipt("user-1", "heb, 2024-01-15")
				Expect(err).NotTo(HaveOccurred())
			})
		})

		When("the path is not writable", func() {
			It("returns an error", func() {
				_, err := NewBoltDB(filepath.Join(tmpDir, "missing", "dir", "test.db"))
				Expect(err).To(MatchError(ContainSubstring("opening boltdb")))
			})
		})
	})
})
