package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/tfmm/internal/config"
	"github.com/elys-network/tfmm/internal/state"
	"github.com/elys-network/tfmm/internal/types"
)

const now = int64(1_700_000_000)

func addr(b byte) types.Address {
	a, err := types.NewAddress("elys", bytes.Repeat([]byte{b}, 20))
	if err != nil {
		panic(err)
	}
	return a
}

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	reg, err := config.ParseRegistry([]byte(`
eth_usd_oracle: eth-usd
allowed_callers: [` + addr(0xa1).String() + `]
oracles:
  - {id: eth-usd, type: static, price: "2000"}
  - {id: usdc-usd, type: static, price: "1"}
pools:
  - address: ` + addr(0x01).String() + `
    rule: momentum
    oracles: [[eth-usd], [usdc-usd]]
    lambdas: ["0.9"]
    parameters:
      - {name: kappa, values: ["0.5"]}
`))
	require.NoError(t, err)
	return reg
}

func testApp(t *testing.T, store state.Store) *app {
	t.Helper()
	config.AdminAddress = addr(0xa0)
	config.StalenessThreshold = 300
	a, err := wire(store, func() int64 { return now })
	require.NoError(t, err)
	return a
}

func TestBootstrapRegistersPools(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a := testApp(t, store)

	require.NoError(t, bootstrap(ctx, a.runner, config.AdminAddress, testRegistry(t), config.OracleOptions{Clock: a.runner.Now}))

	assert.Equal(t, []string{"eth-usd", "usdc-usd"}, a.runner.ApprovedOracles())
	assert.True(t, a.runner.IsAllowed(addr(0xa1)))

	price, err := a.runner.ETHUSDPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000.000000000000000000", price.Value.String())

	pools, err := a.runner.Pools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{addr(0x01)}, pools)

	res, err := a.runner.PerformUpdate(ctx, addr(0x01))
	require.NoError(t, err)
	assert.Equal(t, now, res.RunTime)
}

func TestBootstrapKeepsStoredRegistration(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()

	first := testApp(t, store)
	require.NoError(t, bootstrap(ctx, first.runner, config.AdminAddress, testRegistry(t), config.OracleOptions{Clock: first.runner.Now}))
	_, err := first.runner.PerformUpdate(ctx, addr(0x01))
	require.NoError(t, err)

	// a restart over the same store keeps the last run time
	second := testApp(t, store)
	require.NoError(t, bootstrap(ctx, second.runner, config.AdminAddress, testRegistry(t), config.OracleOptions{Clock: second.runner.Now}))
	reg, err := second.runner.PoolRule(ctx, addr(0x01))
	require.NoError(t, err)
	assert.Equal(t, now, reg.LastRunTime)
}

func TestBootstrapRejectsUnknownRule(t *testing.T) {
	reg := testRegistry(t)
	reg.Pools[0].Rule = "martingale"
	a := testApp(t, state.NewMemoryStore())
	err := bootstrap(context.Background(), a.runner, config.AdminAddress, reg, config.OracleOptions{Clock: a.runner.Now})
	assert.Error(t, err)

	pools, err := a.runner.Pools(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pools)
}
