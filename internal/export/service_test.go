package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/entity"
	"github.com/goopick/madstamp/internal/repository"
)

func seedOrder(t *testing.T, store *repository.MemoryStore, createdAt time.Time, status constants.OrderStatus) uuid.UUID {
	t.Helper()
	o := &entity.Order{
		ID: uuid.New(), MessageID: uuid.NewString(), ThreadID: uuid.NewString(),
		FromEmail: "kim@example.com", Subject: "round seal",
		Status: status, Score: 87.5, Verdict: constants.VerdictProducible,
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	require.NoError(t, store.Create(context.Background(), o, nil))
	return o.ID
}

func TestExportOrdersXLSX(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now().UTC()
	id := seedOrder(t, store, now, constants.StatusCompleted)
	seedOrder(t, store, now.Add(-time.Hour), constants.StatusPending)

	require.NoError(t, store.Generations().Insert(context.Background(), &entity.GenerationResult{
		ID: uuid.New(), OrderID: id, Attempt: 1, Status: constants.GenCompleted, CreatedAt: now,
	}))

	svc := NewService(store, store.Generations(), nil)
	data, err := svc.ExportOrdersXLSX(context.Background(), nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two orders")
	assert.Equal(t, "Created", rows[0][0])
	assert.Equal(t, "kim@example.com", rows[1][2])

	// The completed order carries its attempt count.
	for _, row := range rows[1:] {
		if row[1] == id.String() {
			assert.Equal(t, "COMPLETED", row[4])
			assert.Equal(t, "1", row[7])
		}
	}
}

func TestExportOrdersXLSXWindow(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now().UTC()
	seedOrder(t, store, now, constants.StatusPending)
	seedOrder(t, store, now.AddDate(0, -2, 0), constants.StatusPending)

	from := now.AddDate(0, -1, 0)
	svc := NewService(store, store.Generations(), nil)
	data, err := svc.ExportOrdersXLSX(context.Background(), &from, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "only the order inside the window")
}
