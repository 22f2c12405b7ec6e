package payment

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/chatshop/internal/domain/payment"
)

// Simulator stands in for the real payment provider. Each label stays
// pending for a configured number of queries, then settles into a stable
// outcome drawn once from the success rate. Repeated queries after settling
// keep returning the same outcome, which mirrors a provider's operation
// history reporting the same successful payment on every poll.
type Simulator struct {
	mu           sync.Mutex
	random       *rand.Rand
	successRate  float64
	pendingTicks int
	seen         map[string]*labelState
	baseURL      string
}

type labelState struct {
	queries int
	settled bool
	outcome domain.Status
}

func NewSimulator(successRate float64, pendingTicks int) *Simulator {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	if pendingTicks < 0 {
		pendingTicks = 0
	}
	return &Simulator{
		random:       rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate:  successRate,
		pendingTicks: pendingTicks,
		seen:         make(map[string]*labelState),
		baseURL:      "https://pay.example.com/quickpay",
	}
}

func (s *Simulator) PaymentLink(ctx context.Context, label string, amount int64) (string, error) {
	_ = ctx
	if label == "" {
		return "", fmt.Errorf("payment: label is required")
	}
	if amount <= 0 {
		return "", fmt.Errorf("payment: amount must be greater than zero")
	}
	q := url.Values{}
	q.Set("label", label)
	q.Set("sum", fmt.Sprintf("%d", amount))
	return s.baseURL + "?" + q.Encode(), nil
}

func (s *Simulator) QueryStatus(ctx context.Context, label string) (domain.Status, error) {
	_ = ctx
	if label == "" {
		return domain.StatusFailed, fmt.Errorf("payment: label is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.seen[label]
	if !ok {
		st = &labelState{}
		s.seen[label] = st
	}
	st.queries++

	if st.settled {
		return st.outcome, nil
	}
	if st.queries <= s.pendingTicks {
		return domain.StatusPending, nil
	}

	st.settled = true
	if s.random.Float64() < s.successRate {
		st.outcome = domain.StatusSuccess
	} else {
		st.outcome = domain.StatusFailed
	}
	return st.outcome, nil
}
