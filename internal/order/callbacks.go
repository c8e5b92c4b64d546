package order

import (
	"github.com/wonny/talos/internal/contracts"
)

// Observer callback signatures. Callbacks run outside the manager lock;
// a panicking callback is isolated and logged, never propagated.
type (
	OrderCallback     func(contracts.OrderUpdate)
	FillCallback      func(contracts.Fill)
	ExecutionCallback func(contracts.ExecutionReport)
	PositionCallback  func(contracts.PositionUpdate)
)

// OnOrderUpdate registers a callback for every order status transition
func (m *Manager) OnOrderUpdate(cb OrderCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderCallbacks = append(m.orderCallbacks, cb)
}

// OnFill registers a callback for every individual fill
func (m *Manager) OnFill(cb FillCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillCallbacks = append(m.fillCallbacks, cb)
}

// OnExecutionReport registers a callback fired when an order completes
func (m *Manager) OnExecutionReport(cb ExecutionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executionCallbacks = append(m.executionCallbacks, cb)
}

// OnPositionUpdate registers a callback fired when a completed order
// changes the execution-side position view
func (m *Manager) OnPositionUpdate(cb PositionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionCallbacks = append(m.positionCallbacks, cb)
}

func (m *Manager) notifyOrderUpdate(update contracts.OrderUpdate) {
	m.mu.Lock()
	callbacks := append([]OrderCallback(nil), m.orderCallbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		m.safeInvoke("order_update", func() { cb(update) })
	}
}

func (m *Manager) notifyFill(fill contracts.Fill) {
	m.mu.Lock()
	callbacks := append([]FillCallback(nil), m.fillCallbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		m.safeInvoke("fill", func() { cb(fill) })
	}
}

func (m *Manager) notifyExecutionReport(report contracts.ExecutionReport) {
	m.mu.Lock()
	callbacks := append([]ExecutionCallback(nil), m.executionCallbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		m.safeInvoke("execution_report", func() { cb(report) })
	}
}

func (m *Manager) notifyPositionUpdate(update contracts.PositionUpdate) {
	m.mu.Lock()
	callbacks := append([]PositionCallback(nil), m.positionCallbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		m.safeInvoke("position_update", func() { cb(update) })
	}
}

// safeInvoke runs one callback, absorbing panics so a misbehaving
// observer cannot take down the manager
func (m *Manager) safeInvoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithFields(map[string]interface{}{
				"callback": kind,
				"panic":    r,
			}).Error("Callback panicked")
		}
	}()
	fn()
}
