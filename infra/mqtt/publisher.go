package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	coremqtt "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/mqtt"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher records schedules in memory. It is used by tests and by the
// dry-run mode of the CLI.
type MockPublisher struct {
	// Schedules holds the last schedule sent per team and date, keyed "team/date".
	Schedules map[string]coremqtt.Schedule
	History   []model.ConflictResolutionHistory
	// FailIDs makes SendSchedule fail for a team.
	FailIDs map[string]bool
	// Decline makes the team reject its schedule.
	Decline map[string]bool
	// Silent makes WaitForAck time out for a team.
	Silent map[string]bool

	mu      sync.Mutex
	pending map[string]string
}

var _ Publisher = (*MockPublisher)(nil)

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Schedules: make(map[string]coremqtt.Schedule),
		FailIDs:   make(map[string]bool),
		Decline:   make(map[string]bool),
		Silent:    make(map[string]bool),
		pending:   make(map[string]string),
	}
}

// SendSchedule records the schedule or returns an error if configured to fail.
func (m *MockPublisher) SendSchedule(s coremqtt.Schedule) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[s.TeamID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Schedules[s.TeamID+"/"+s.Date] = s
	commandID := fmt.Sprintf("cmd-%s-%s", s.TeamID, s.Date)
	m.pending[commandID] = s.TeamID
	return commandID, nil
}

// WaitForAck answers immediately from the Decline and Silent settings.
func (m *MockPublisher) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.pending[commandID]
	if !ok {
		return false, fmt.Errorf("%w: %s", coremqtt.ErrUnknownCommand, commandID)
	}
	delete(m.pending, commandID)
	if m.Silent[team] {
		return false, coremqtt.ErrAckTimeout
	}
	return !m.Decline[team], nil
}

// PublishHistory appends h to History.
func (m *MockPublisher) PublishHistory(h model.ConflictResolutionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.History = append(m.History, h)
	return nil
}

// Sent returns the number of recorded schedules.
func (m *MockPublisher) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Schedules)
}
