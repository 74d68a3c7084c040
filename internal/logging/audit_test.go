package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditTrailIsAppendOnlyJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, InitAudit(path))
	t.Cleanup(func() { CloseAudit() })

	Audit(AuditEvent{EventType: AuditCaseIntake, Actor: "tester", CaseID: "case_1", Action: "accept"})
	Audit(AuditEvent{EventType: AuditPrivacyBlock, Actor: "tester", CaseID: "case_1", Severity: SeverityHigh})
	require.NoError(t, CloseAudit())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, AuditCaseIntake, events[0].EventType)
	assert.False(t, events[0].Timestamp.IsZero(), "events are timestamped at append")
	assert.Equal(t, SeverityInfo, events[0].Severity, "severity defaults to info")
	assert.Equal(t, SeverityHigh, events[1].Severity)
}

func TestReadAuditFilters(t *testing.T) {
	InitAuditMemory()

	Audit(AuditEvent{EventType: AuditCaseIntake, CaseID: "case_1"})
	Audit(AuditEvent{EventType: AuditCaseIntake, CaseID: "case_2"})
	Audit(AuditEvent{EventType: AuditPrivacyBlock, CaseID: "case_1", Severity: SeverityHigh})

	assert.Len(t, ReadAudit(AuditFilter{}), 3)
	assert.Len(t, ReadAudit(AuditFilter{CaseID: "case_1"}), 2)
	assert.Len(t, ReadAudit(AuditFilter{EventType: AuditPrivacyBlock}), 1)
	assert.Len(t, ReadAudit(AuditFilter{CaseID: "case_2", EventType: AuditPrivacyBlock}), 0)
	assert.Len(t, ReadAudit(AuditFilter{Severity: SeverityHigh}), 1)
}

func TestAuditWithoutSinkIsNoop(t *testing.T) {
	auditMu.Lock()
	auditSink = nil
	auditMu.Unlock()

	// Must not panic.
	Audit(AuditEvent{EventType: AuditCaseIntake})
	assert.Nil(t, ReadAudit(AuditFilter{}))
}
