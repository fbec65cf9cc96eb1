package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockDriver implements SettlementDriver in memory for development and tests.
type MockDriver struct {
	mu         sync.Mutex
	PrepareErr error
	ExecuteErr error
	executed   []*SettlementHandle
	aborted    []*SettlementHandle
}

func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

func (m *MockDriver) PrepareSettlement(ctx context.Context, req SettlementRequest) (*SettlementHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PrepareErr != nil {
		return nil, m.PrepareErr
	}
	return &SettlementHandle{
		ID:         uuid.NewString(),
		WishID:     req.WishID,
		DriverType: DriverMock,
		PreparedAt: time.Now(),
		Recipient:  req.Recipient,
		Amount:     req.Amount,
	}, nil
}

func (m *MockDriver) ExecuteSettlement(ctx context.Context, h *SettlementHandle) (*SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExecuteErr != nil {
		return nil, m.ExecuteErr
	}
	m.executed = append(m.executed, h)
	return &SettlementResult{
		TxID:       fmt.Sprintf("mock_%s", h.ID),
		DriverType: DriverMock,
		FinalState: StateConfirmed,
		Attempts:   1,
	}, nil
}

func (m *MockDriver) AbortSettlement(ctx context.Context, h *SettlementHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = append(m.aborted, h)
	return nil
}

func (m *MockDriver) Capabilities() DriverCapabilities {
	return DriverCapabilities{MaxAmount: ^uint64(0), Decimals: 6, SettlementType: DriverMock}
}

// Executed returns the handles settled so far.
func (m *MockDriver) Executed() []*SettlementHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*SettlementHandle(nil), m.executed...)
}

// Aborted returns the handles aborted so far.
func (m *MockDriver) Aborted() []*SettlementHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*SettlementHandle(nil), m.aborted...)
}
