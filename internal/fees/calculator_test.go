package fees

import (
	"errors"
	"testing"

	"github.com/escrowdesk/backend/internal/models"
)

func standardSettings() models.FeeSettings {
	return models.FeeSettings{
		Tier:          models.TierStandard,
		FeeBPS:        250, // 2.5%
		MinFee:        50,  // 0.50
		MaxFeeBPS:     250, // 2.5% cap
		BuyerShareBPS: 5000,
	}
}

func TestCalculateStandardSplit(t *testing.T) {
	// 1000.00 at 2.5%, 50/50 split.
	b, err := Calculate(100000, standardSettings())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if b.TotalFee != 2500 {
		t.Errorf("TotalFee = %d, want 2500", b.TotalFee)
	}
	if b.BuyerFee != 1250 || b.SellerFee != 1250 {
		t.Errorf("split = %d/%d, want 1250/1250", b.BuyerFee, b.SellerFee)
	}
	if b.BuyerPays != 101250 {
		t.Errorf("BuyerPays = %d, want 101250", b.BuyerPays)
	}
	if b.SellerReceives != 98750 {
		t.Errorf("SellerReceives = %d, want 98750", b.SellerReceives)
	}
}

func TestCalculateMinimumFeeFloor(t *testing.T) {
	// 5.00 at 2.5% is 0.125, clamped up to the 0.50 minimum.
	b, err := Calculate(500, standardSettings())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if b.TotalFee != 50 {
		t.Errorf("TotalFee = %d, want 50", b.TotalFee)
	}
	if b.BuyerFee != 25 || b.SellerFee != 25 {
		t.Errorf("split = %d/%d, want 25/25", b.BuyerFee, b.SellerFee)
	}
}

func TestCalculateMaxPercentageCap(t *testing.T) {
	s := standardSettings()
	s.FeeBPS = 1000   // 10%
	s.MaxFeeBPS = 250 // capped at 2.5%
	b, err := Calculate(100000, s)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if b.TotalFee != 2500 {
		t.Errorf("TotalFee = %d, want capped 2500", b.TotalFee)
	}
}

func TestCalculateUnevenSplitSumsExactly(t *testing.T) {
	s := standardSettings()
	s.BuyerShareBPS = 3333

	// Amounts chosen so buyer share rounds; seller takes the remainder.
	for _, amount := range []int64{100000, 99999, 777, 101} {
		b, err := Calculate(amount, s)
		if err != nil {
			t.Fatalf("Calculate(%d): %v", amount, err)
		}
		if b.BuyerFee+b.SellerFee != b.TotalFee {
			t.Errorf("amount %d: buyerFee %d + sellerFee %d != totalFee %d",
				amount, b.BuyerFee, b.SellerFee, b.TotalFee)
		}
		if b.BuyerPays != amount+b.BuyerFee {
			t.Errorf("amount %d: BuyerPays = %d, want %d", amount, b.BuyerPays, amount+b.BuyerFee)
		}
		if b.SellerReceives != amount-b.SellerFee {
			t.Errorf("amount %d: SellerReceives = %d, want %d", amount, b.SellerReceives, amount-b.SellerFee)
		}
	}
}

func TestCalculateRespectsBounds(t *testing.T) {
	s := standardSettings()
	for amount := int64(100); amount < 2_000_000; amount = amount*3 + 17 {
		b, err := Calculate(amount, s)
		if err != nil {
			t.Fatalf("Calculate(%d): %v", amount, err)
		}
		if b.TotalFee < s.MinFee {
			t.Errorf("amount %d: fee %d below minimum %d", amount, b.TotalFee, s.MinFee)
		}
		// Cap only binds once the percentage fee exceeds the minimum.
		capped := (amount*int64(s.MaxFeeBPS) + 5000) / 10000
		if capped >= s.MinFee && b.TotalFee > capped {
			t.Errorf("amount %d: fee %d above cap %d", amount, b.TotalFee, capped)
		}
	}
}

func TestCalculateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		mutate func(*models.FeeSettings)
	}{
		{"zero amount", 0, nil},
		{"negative amount", -100, nil},
		{"negative bps", 100000, func(s *models.FeeSettings) { s.FeeBPS = -1 }},
		{"buyer share above 100%", 100000, func(s *models.FeeSettings) { s.BuyerShareBPS = 10001 }},
		{"min fee above amount", 10, func(s *models.FeeSettings) { s.MinFee = 50 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := standardSettings()
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			if _, err := Calculate(tt.amount, s); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Calculate = %v, want ErrValidation", err)
			}
		})
	}
}
