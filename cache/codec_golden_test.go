package cache

import (
	"testing"
	"time"

	"github.com/goliatone/go-entity-cache/pkg/testsupport"
	"github.com/shopspring/decimal"
)

type Invoice struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Issued time.Time       `json:"issued"`
	Paid   bool            `json:"paid"`
}

// The wire format is a compatibility surface: payloads written by one
// process version must stay readable by another. The golden file pins the
// exact byte layout so an accidental format change fails loudly.
func TestSerializeEntity_GoldenPayload(t *testing.T) {
	invoice := Invoice{
		ID:     "inv-1",
		Amount: decimal.RequireFromString("150.75"),
		Issued: time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC),
		Paid:   true,
	}

	data, err := SerializeEntity(&invoice)
	if err != nil {
		t.Fatalf("SerializeEntity() error = %v", err)
	}

	testsupport.CompareWithGolden(t, testsupport.GoldenPath("invoice_payload.json"), data)
}

func TestDeserializeEntity_ForeignPayloadFixture(t *testing.T) {
	data := testsupport.LoadFixture(t, testsupport.FixturePath("invoice_payload.json"))

	var invoice Invoice
	if err := DeserializeEntity(data, &invoice); err != nil {
		t.Fatalf("DeserializeEntity() error = %v", err)
	}

	if invoice.ID != "inv-9" {
		t.Errorf("ID = %q, want inv-9", invoice.ID)
	}
	if !invoice.Amount.Equal(decimal.RequireFromString("99.50")) {
		t.Errorf("Amount = %v, want 99.50", invoice.Amount)
	}
	want := time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC)
	if !invoice.Issued.Equal(want) {
		t.Errorf("Issued = %v, want %v", invoice.Issued, want)
	}
	if invoice.Paid {
		t.Error("Paid = true, want false")
	}
}
