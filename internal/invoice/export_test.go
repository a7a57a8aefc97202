package invoice

import (
	"bytes"
	"encoding/csv"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("Summary export", func() {
	var entries []StoreEntry

	BeforeEach(func() {
		second := sampleDocument()
		second.Invoice.Header.InvoiceNumber = "INV-2024-002"
		second.Invoice.BillingParties.BillFrom.CompanyName = `Smith, "Jones" & Co`
		second.Invoice.Totals.TotalAmount = 1000
		second.Invoice.Totals.BalanceDue = 0
		entries = []StoreEntry{
			{ID: "a.jpg", Document: sampleDocument()},
			{ID: "c.jpg", Document: second},
		}
	})

	Describe("SummaryRows", func() {
		It("should produce one row per entry in entry order", func() {
			rows := SummaryRows(entries)
			Expect(rows).To(HaveLen(2))
			Expect(rows[0][0]).To(Equal("a.jpg"))
			Expect(rows[1][0]).To(Equal("c.jpg"))
		})

		It("should fill the summary columns", func() {
			rows := SummaryRows(entries)
			Expect(rows[0]).To(Equal([]string{
				"a.jpg",
				"INV-2024-001",
				"Müller GmbH",
				"386.75",
				"EUR",
				"286.75",
				"15.01.2024",
				"14.02.2024",
			}))
		})

		It("should render whole amounts without decimals", func() {
			rows := SummaryRows(entries)
			Expect(rows[1][3]).To(Equal("1000"))
			Expect(rows[1][5]).To(Equal("0"))
		})

		It("should return no rows for an empty store", func() {
			Expect(SummaryRows(nil)).To(BeEmpty())
		})
	})

	Describe("SummaryTable", func() {
		It("should start with the eight column header", func() {
			table := SummaryTable(entries)
			Expect(table[0]).To(Equal(SummaryHeader))
			Expect(table[0]).To(HaveLen(8))
			Expect(table).To(HaveLen(3))
		})

		It("should be header only for an empty store", func() {
			table := SummaryTable(nil)
			Expect(table).To(HaveLen(1))
			Expect(table[0]).To(Equal(SummaryHeader))
		})
	})

	Describe("WriteSummaryCSV", func() {
		var (
			buf bytes.Buffer
			err error
		)

		BeforeEach(func() {
			buf.Reset()
		})

		JustBeforeEach(func() {
			err = WriteSummaryCSV(&buf, entries)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should quote fields with commas and quotes", func() {
			Expect(buf.String()).To(ContainSubstring(`"Smith, ""Jones"" & Co"`))
		})

		It("should parse back into the same table", func() {
			records, readErr := csv.NewReader(&buf).ReadAll()
			Expect(readErr).NotTo(HaveOccurred())
			Expect(records).To(Equal(SummaryTable(entries)))
		})

		When("the store is empty", func() {
			BeforeEach(func() {
				entries = nil
			})

			It("should write only the header", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(buf.String()).To(Equal("Filename,Invoice Number,Company,Total Amount,Currency,Balance Due,Invoice Date,Due Date\n"))
			})
		})
	})

	Describe("WriteSummaryXLSX", func() {
		It("should write a readable workbook", func() {
			var buf bytes.Buffer
			Expect(WriteSummaryXLSX(&buf, entries)).To(Succeed())

			f, err := excelize.OpenReader(&buf)
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			rows, err := f.GetRows("Invoices")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[0]).To(Equal(SummaryHeader))
			Expect(rows[1][0]).To(Equal("a.jpg"))
			Expect(rows[2][2]).To(Equal(`Smith, "Jones" & Co`))
		})

		It("should highlight the balance of outstanding invoices only", func() {
			var buf bytes.Buffer
			Expect(WriteSummaryXLSX(&buf, entries)).To(Succeed())

			f, err := excelize.OpenReader(&buf)
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			Expect(SummaryHeader[balanceColumn-1]).To(Equal("Balance Due"))

			owing, err := f.GetCellStyle("Invoices", "F2")
			Expect(err).NotTo(HaveOccurred())
			paid, err := f.GetCellStyle("Invoices", "F3")
			Expect(err).NotTo(HaveOccurred())
			Expect(owing).NotTo(BeZero())
			Expect(paid).To(BeZero())

			style, err := f.GetStyle(owing)
			Expect(err).NotTo(HaveOccurred())
			Expect(style.Font.Bold).To(BeTrue())
		})

		It("should write only the header for an empty store", func() {
			var buf bytes.Buffer
			Expect(WriteSummaryXLSX(&buf, nil)).To(Succeed())

			f, err := excelize.OpenReader(&buf)
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			rows, err := f.GetRows("Invoices")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})
	})
})

var _ = Describe("Archive", func() {
	var (
		path    string
		entries []StoreEntry
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "invoices.db")
		second := sampleDocument()
		second.Invoice.Header.InvoiceNumber = "INV-2024-002"
		entries = []StoreEntry{
			{ID: "z.jpg", Document: sampleDocument()},
			{ID: "a.jpg", Document: second},
		}
	})

	It("should read back what was written, in order", func() {
		Expect(WriteArchive(path, entries)).To(Succeed())

		read, err := ReadArchive(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(read).To(Equal(entries))
	})

	It("should replace a previous archive", func() {
		Expect(WriteArchive(path, entries)).To(Succeed())
		Expect(WriteArchive(path, entries[1:])).To(Succeed())

		read, err := ReadArchive(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(read).To(HaveLen(1))
		Expect(read[0].ID).To(Equal("a.jpg"))
	})

	It("should handle an empty store", func() {
		Expect(WriteArchive(path, nil)).To(Succeed())

		read, err := ReadArchive(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(read).To(BeEmpty())
	})

	It("returns an error for a missing archive", func() {
		_, err := ReadArchive(filepath.Join(GinkgoT().TempDir(), "missing", "x.db"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Outstanding", func() {
	DescribeTable("reports a positive balance due",
		func(balance float64, want bool) {
			Expect(Record{Totals: Totals{BalanceDue: balance}}.Outstanding()).To(Equal(want))
		},
		Entry("balance left", 286.75, true),
		Entry("paid in full", 0.0, false),
		Entry("overpaid", -10.0, false),
	)
})
