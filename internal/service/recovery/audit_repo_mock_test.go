package recovery

import (
	"context"
	"github.com/google/uuid"
	"github.com/heartmarshall/coursesync/internal/domain"
	"sync"
)

var _ auditRepo = &auditRepoMock{}

type auditRepoMock struct {
	CreateFunc       func(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error)
	ListByRecordFunc func(ctx context.Context, table string, recordID uuid.UUID) ([]domain.AuditEntry, error)

	calls struct {
		Create []struct {
			Ctx context.Context
			E   domain.AuditEntry
		}
		ListByRecord []struct {
			Ctx      context.Context
			Table    string
			RecordID uuid.UUID
		}
	}
	lockCreate       sync.RWMutex
	lockListByRecord sync.RWMutex
}

func (mock *auditRepoMock) Create(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	if mock.CreateFunc == nil {
		panic("auditRepoMock.CreateFunc: method is nil but auditRepo.Create was just called")
	}
	callInfo := struct {
		Ctx context.Context
		E   domain.AuditEntry
	}{Ctx: ctx, E: e}
	mock.lockCreate.Lock()
	mock.calls.Create = append(mock.calls.Create, callInfo)
	mock.lockCreate.Unlock()
	return mock.CreateFunc(ctx, e)
}

func (mock *auditRepoMock) CreateCalls() []struct {
	Ctx context.Context
	E   domain.AuditEntry
} {
	mock.lockCreate.RLock()
	calls := mock.calls.Create
	mock.lockCreate.RUnlock()
	return calls
}

func (mock *auditRepoMock) ListByRecord(ctx context.Context, table string, recordID uuid.UUID) ([]domain.AuditEntry, error) {
	if mock.ListByRecordFunc == nil {
		panic("auditRepoMock.ListByRecordFunc: method is nil but auditRepo.ListByRecord was just called")
	}
	callInfo := struct {
		Ctx      context.Context
		Table    string
		RecordID uuid.UUID
	}{Ctx: ctx, Table: table, RecordID: recordID}
	mock.lockListByRecord.Lock()
	mock.calls.ListByRecord = append(mock.calls.ListByRecord, callInfo)
	mock.lockListByRecord.Unlock()
	return mock.ListByRecordFunc(ctx, table, recordID)
}

func (mock *auditRepoMock) ListByRecordCalls() []struct {
	Ctx      context.Context
	Table    string
	RecordID uuid.UUID
} {
	mock.lockListByRecord.RLock()
	calls := mock.calls.ListByRecord
	mock.lockListByRecord.RUnlock()
	return calls
}
