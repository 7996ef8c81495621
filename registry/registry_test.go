package registry

import (
	"testing"
	"time"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence/inmem"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, reg *EventWaitRegistry, dao *inmem.InMemWaitTokenDao,
	){
		"test register and resolve":   testRegisterResolve,
		"test resolve is single use":  testResolveSingleUse,
		"test sweep expired":          testSweepExpired,
		"test remove without resolve": testRemove,
	} {
		t.Run(scenario, func(t *testing.T) {
			dao := inmem.NewInMemWaitTokenDao()
			fn(t, NewEventWaitRegistry(dao), dao)
		})
	}
}

func testRegisterResolve(t *testing.T, reg *EventWaitRegistry, dao *inmem.InMemWaitTokenDao) {
	token, err := reg.Register("run-1", "waitApproval")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	tok, err := reg.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, "run-1", tok.RunId)
	require.Equal(t, "waitApproval", tok.NodeId)
}

func testResolveSingleUse(t *testing.T, reg *EventWaitRegistry, dao *inmem.InMemWaitTokenDao) {
	token, err := reg.Register("run-1", "waitApproval")
	require.NoError(t, err)

	_, err = reg.Resolve(token)
	require.NoError(t, err)

	_, err = reg.Resolve(token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func testSweepExpired(t *testing.T, reg *EventWaitRegistry, dao *inmem.InMemWaitTokenDao) {
	require.NoError(t, dao.SaveToken(model.WaitToken{
		Token:     "old-token",
		RunId:     "run-1",
		NodeId:    "waitApproval",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))
	fresh, err := reg.Register("run-2", "waitPayment")
	require.NoError(t, err)

	expired, err := reg.SweepExpired(time.Hour)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "old-token", expired[0].Token)

	// swept token is consumed, fresh one still resolvable
	_, err = reg.Resolve("old-token")
	require.ErrorIs(t, err, ErrTokenNotFound)
	_, err = reg.Resolve(fresh)
	require.NoError(t, err)
}

func testRemove(t *testing.T, reg *EventWaitRegistry, dao *inmem.InMemWaitTokenDao) {
	token, err := reg.Register("run-1", "waitApproval")
	require.NoError(t, err)

	require.NoError(t, reg.Remove(token))
	_, err = reg.Resolve(token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}
