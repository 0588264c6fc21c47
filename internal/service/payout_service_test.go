package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/models"
)

func TestCreatePayoutMarksUnpaidAsPaid(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	alice := f.createAffiliate(t, "wendy", "wendy@pay.com", constants.RateTypePercentage, "10")
	bob := f.createAffiliate(t, "xavier", "xavier@pay.com", constants.RateTypePercentage, "10")

	a1, err := f.referrals.HandleOrderCreated(ctx, paidOrder("p-1", 10000, f.visitCookie(t, alice)))
	if err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
	if _, err := f.referrals.HandleOrderCreated(ctx, paidOrder("p-2", 25000, f.visitCookie(t, alice))); err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
	pending := paidOrder("p-3", 40000, f.visitCookie(t, alice))
	pending.Status = constants.PlatformOrderStatusPending
	if _, err := f.referrals.HandleOrderCreated(ctx, pending); err != nil {
		t.Fatalf("create pending referral failed: %v", err)
	}
	euro := paidOrder("p-4", 10000, f.visitCookie(t, bob))
	euro.Currency = "EUR"
	if _, err := f.referrals.HandleOrderCreated(ctx, euro); err != nil {
		t.Fatalf("create eur referral failed: %v", err)
	}

	payout, err := f.payouts.CreatePayout(ctx, PayoutInput{
		AffiliateIDs: []uint{bob.ID, alice.ID, alice.ID},
		Currency:     "usd",
		Note:         "march",
		CreatedBy:    "admin",
	})
	if err != nil {
		t.Fatalf("create payout failed: %v", err)
	}
	if payout.Status != constants.PayoutStatusCompleted || payout.ReferralCount != 2 {
		t.Fatalf("unexpected payout: %+v", payout)
	}
	if !payout.Amount.Decimal.Equal(mustDecimal(t, "35")) {
		t.Fatalf("expected payout amount 35, got %s", payout.Amount)
	}
	if len(payout.Transactions) != 1 || payout.Transactions[0].AffiliateID != alice.ID || payout.Transactions[0].PaymentEmail != "wendy@pay.com" {
		t.Fatalf("unexpected transactions: %+v", payout.Transactions)
	}

	paid := f.reloadReferral(t, a1.Referral.ID)
	if paid.Status != constants.ReferralStatusPaid || paid.PayoutID == nil || *paid.PayoutID != payout.ID || paid.PaidAt == nil {
		t.Fatalf("expected referral paid under payout, got %+v", paid)
	}

	reloaded := f.reloadAffiliate(t, alice.ID)
	if !reloaded.UnpaidEarnings.Decimal.IsZero() || !reloaded.TotalEarnings.Decimal.Equal(mustDecimal(t, "35")) {
		t.Fatalf("expected unpaid settled and total kept, got %+v", reloaded)
	}
	f.assertLedgerConsistent(t, alice.ID)
	f.assertLedgerConsistent(t, bob.ID)

	paidEvents := 0
	for _, name := range f.listener.names() {
		if name == constants.ReferralEventMarkedPaid {
			paidEvents++
		}
	}
	if paidEvents != 2 {
		t.Fatalf("expected 2 marked paid events, got %d", paidEvents)
	}

	if _, err := f.payouts.CreatePayout(ctx, PayoutInput{AffiliateIDs: []uint{alice.ID}, Currency: "USD"}); !errors.Is(err, ErrPayoutEmpty) {
		t.Fatalf("expected empty payout, got %v", err)
	}
	var payouts int64
	f.db.Model(&models.Payout{}).Count(&payouts)
	if payouts != 1 {
		t.Fatalf("expected empty payout rolled back, got %d payouts", payouts)
	}
}

func TestCreatePayoutValidatesInput(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	if _, err := f.payouts.CreatePayout(ctx, PayoutInput{AffiliateIDs: []uint{1}, Currency: "US"}); !errors.Is(err, ErrPayoutInvalid) {
		t.Fatalf("expected invalid currency, got %v", err)
	}
	if _, err := f.payouts.CreatePayout(ctx, PayoutInput{AffiliateIDs: []uint{0}, Currency: "USD"}); !errors.Is(err, ErrPayoutInvalid) {
		t.Fatalf("expected invalid affiliate ids, got %v", err)
	}
	if _, err := f.payouts.CreatePayout(ctx, PayoutInput{AffiliateIDs: []uint{777}, Currency: "USD"}); !errors.Is(err, ErrAffiliateNotFound) {
		t.Fatalf("expected affiliate not found, got %v", err)
	}
	if _, err := f.payouts.GetPayout(777); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected payout not found, got %v", err)
	}
}
