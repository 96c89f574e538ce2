package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// MockClickHouseConn implements driver.Conn for testing. Only the methods
// the pool uses are overridden.
type MockClickHouseConn struct {
	driver.Conn

	mu       sync.Mutex
	batches  []*MockBatch
	execs    []string
	failSend bool
	// rejectStage makes Append fail for rows of that stage.
	rejectStage string
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &MockBatch{query: query, failSend: m.failSend, rejectStage: m.rejectStage}
	m.batches = append(m.batches, b)
	return b, nil
}

func (m *MockClickHouseConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, query)
	return nil
}

// sentRows returns every row of every successfully sent batch.
func (m *MockClickHouseConn) sentRows() [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows [][]interface{}
	for _, b := range m.batches {
		if b.IsSent() {
			rows = append(rows, b.rows...)
		}
	}
	return rows
}

type MockBatch struct {
	mu          sync.Mutex
	query       string
	rows        [][]interface{}
	sent        bool
	failSend    bool
	rejectStage string
}

func (m *MockBatch) IsSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func (m *MockBatch) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MockBatch) Append(v ...interface{}) error {
	if m.rejectStage != "" && len(v) > 3 && v[3] == m.rejectStage {
		return errors.New("converting column stage_name: unsupported value")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, v)
	return nil
}

func (m *MockBatch) AppendStruct(v interface{}) error {
	return nil
}

func (m *MockBatch) Column(int) driver.BatchColumn {
	return nil
}

func (m *MockBatch) Send() error {
	if m.failSend {
		return errors.New("clickhouse unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = true
	return nil
}

func (m *MockBatch) Flush() error {
	return nil
}

func (m *MockBatch) Abort() error {
	return nil
}
