package treasury

import (
	"context"
	"errors"
	"testing"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/storage/memory"
)

func TestService_DepositWithdraw(t *testing.T) {
	svc := New(memory.New(), nil)

	if _, err := svc.Withdraw(context.Background(), 0, "operator-wallet"); !errors.Is(err, feed.ErrNoFunds) {
		t.Fatalf("expected ErrNoFunds on empty balance, got %v", err)
	}

	balance, err := svc.Deposit(context.Background(), 100)
	if err != nil || balance != 100 {
		t.Fatalf("deposit: %d %v", balance, err)
	}

	withdrawn, err := svc.Withdraw(context.Background(), 40, "operator-wallet")
	if err != nil || withdrawn != 40 {
		t.Fatalf("withdraw: %d %v", withdrawn, err)
	}

	balance, err = svc.Balance(context.Background())
	if err != nil || balance != 60 {
		t.Fatalf("balance: %d %v", balance, err)
	}

	// Sweep the remainder.
	withdrawn, err = svc.Withdraw(context.Background(), 0, "operator-wallet")
	if err != nil || withdrawn != 60 {
		t.Fatalf("sweep: %d %v", withdrawn, err)
	}
}
