package shared_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academyhub/academyhub/internal/shared"
)

func TestAuditPageWalksNewestFirst(t *testing.T) {
	audit := shared.NewAuditLogger(newStore(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, audit.Record(ctx, shared.AuditLog{
			ActorID:  "admin-1",
			Action:   "role.create",
			Entity:   "role",
			EntityID: fmt.Sprintf("r%d", i),
			At:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, page, err := audit.Page(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "r4", logs[0].EntityID)
	assert.Equal(t, "r3", logs[1].EntityID)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.HasPrev())
	assert.True(t, page.HasNext())

	logs, page, err = audit.Page(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "r0", logs[0].EntityID)
	assert.False(t, page.HasNext())
}

func TestAuditRecordRequiresEntity(t *testing.T) {
	audit := shared.NewAuditLogger(newStore(t))
	err := audit.Record(context.Background(), shared.AuditLog{Action: "role.create"})
	assert.Error(t, err)
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 1, shared.ParsePage(""))
	assert.Equal(t, 1, shared.ParsePage("-3"))
	assert.Equal(t, 4, shared.ParsePage("4"))
}
