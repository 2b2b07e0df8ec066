package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/tfmm/internal/types"
)

func dec(s string) sdkmath.LegacyDec { return sdkmath.LegacyMustNewDecFromStr(s) }

func staticOracle(id string, answer int64, decimals uint8, ts int64) (*Direct, *StaticFeed) {
	feed := NewStaticFeed(sdkmath.NewInt(answer), decimals, ts)
	return NewDirect(id, feed), feed
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		answer   string
		decimals uint8
		expected string
	}{
		{"6412345000000", 8, "64123.45"},
		{"1500000000000000000", 18, "1.5"},
		{"150000000000000000000", 20, "1.5"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_%d", tc.answer, tc.decimals), func(t *testing.T) {
			answer, ok := sdkmath.NewIntFromString(tc.answer)
			require.True(t, ok)
			got, err := Normalize(answer, tc.decimals)
			require.NoError(t, err)
			assert.Equal(t, dec(tc.expected).String(), got.String())
		})
	}

	_, err := Normalize(sdkmath.ZeroInt(), 8)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = Normalize(sdkmath.NewInt(-5), 8)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = Normalize(sdkmath.NewInt(1), 30)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDirect(t *testing.T) {
	o, feed := staticOracle("btc-usd", 6_000_000_000_000, 8, 100)
	r, err := o.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dec("60000").String(), r.Value.String())
	assert.Equal(t, int64(100), r.Timestamp)
	assert.Equal(t, "btc-usd", o.ID())

	feed.Fail(errors.New("feed offline"))
	_, err = o.Fetch(context.Background())
	assert.Error(t, err)
}

func TestMultiHop(t *testing.T) {
	btcEth, _ := staticOracle("btc-eth", 20_00000000, 8, 90)
	ethUsd, ethFeed := staticOracle("eth-usd", 3000_00000000, 8, 120)

	route, err := NewMultiHop("btc-usd", []Hop{{Oracle: btcEth}, {Oracle: ethUsd}})
	require.NoError(t, err)
	r, err := route.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dec("60000").String(), r.Value.String())
	assert.Equal(t, int64(90), r.Timestamp)

	usdEth, err := NewMultiHop("usd-btc", []Hop{{Oracle: ethUsd, Invert: true}, {Oracle: btcEth, Invert: true}})
	require.NoError(t, err)
	r, err = usdEth.Fetch(context.Background())
	require.NoError(t, err)
	// 1/3000 * 1/20, both truncated
	assert.Equal(t, "0.000016666666666666", r.Value.String())

	ethFeed.Fail(ErrNoData)
	_, err = route.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNoData)

	_, err = NewMultiHop("short", []Hop{{Oracle: btcEth}})
	assert.ErrorIs(t, err, ErrInvalidOracle)
}

func TestComposite(t *testing.T) {
	now := int64(1_000)
	clock := func() int64 { return now }
	atom, _ := staticOracle("atom-usd", 1000000000, 8, 990)
	usdc, usdcFeed := staticOracle("usdc-usd", 100000000, 8, 995)
	state := NewStaticPoolState([]sdkmath.LegacyDec{dec("100"), dec("1000")}, dec("50"))

	lp, err := NewComposite("lp-atom-usdc", state, []Oracle{atom, usdc}, 60, clock)
	require.NoError(t, err)

	r, err := lp.Fetch(context.Background())
	require.NoError(t, err)
	// (100 * 10 + 1000 * 1) / 50
	assert.Equal(t, dec("40").String(), r.Value.String())
	assert.Equal(t, now, r.Timestamp)

	usdcFeed.Set(sdkmath.NewInt(100000000), 900)
	_, err = lp.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrStaleOracle)

	state.Set([]sdkmath.LegacyDec{dec("1")}, dec("50"))
	_, err = lp.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrInvalidOracle)
}

func TestCheckFreshness(t *testing.T) {
	r := Reading{Value: dec("1"), Timestamp: 100}
	assert.NoError(t, CheckFreshness(r, 160, 60))

	err := CheckFreshness(r, 161, 60)
	assert.ErrorIs(t, err, ErrStaleOracle)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)

	assert.ErrorIs(t, CheckFreshness(r, 99, 60), ErrStaleOracle)
	assert.ErrorIs(t, CheckFreshness(Reading{Value: dec("0"), Timestamp: 100}, 100, 60), ErrNoData)
}

const candleResponse = `{
  "Response": "Success",
  "Message": "",
  "HasWarning": false,
  "Type": 100,
  "Data": {
    "Aggregated": false,
    "TimeFrom": 1700000000,
    "TimeTo": 1700000060,
    "Data": [
      {"time": 1700000000, "close": 64000.5, "high": 64010, "low": 63990, "open": 64001, "volumefrom": 1, "volumeto": 64000},
      {"time": 1700000060, "close": 64123.45, "high": 64200, "low": 64000, "open": 64000.5, "volumefrom": 2, "volumeto": 128000}
    ]
  }
}`

func TestHTTPFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC", r.URL.Query().Get("fsym"))
		assert.Equal(t, "USD", r.URL.Query().Get("tsym"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(candleResponse))
	}))
	defer server.Close()

	feed, err := NewHTTPFeed(HTTPFeedConfig{BaseURL: server.URL, APIKey: "secret", Symbol: "btc"})
	require.NoError(t, err)

	o := NewDirect("btc-usd", feed)
	r, err := o.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dec("64123.45").String(), r.Value.String())
	assert.Equal(t, int64(1700000060), r.Timestamp)
}

func TestHTTPFeedBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	feed, err := NewHTTPFeed(HTTPFeedConfig{
		BaseURL:      server.URL,
		Symbol:       "ETH",
		MaxFailures:  2,
		OpenDuration: time.Minute,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, _, err = feed.Latest(context.Background())
		assert.ErrorIs(t, err, ErrUpstream)
	}
	_, _, _, err = feed.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPFeedRejectsErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Response":"Error","Message":"rate limit","Data":{"Data":[]}}`))
	}))
	defer server.Close()

	feed, err := NewHTTPFeed(HTTPFeedConfig{BaseURL: server.URL, Symbol: "ETH"})
	require.NoError(t, err)
	_, _, _, err = feed.Latest(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestPegFeed(t *testing.T) {
	now := int64(1_700_000_000)
	peg := NewDirect("usdc", NewPegFeed(sdkmath.NewInt(1_000_000), 6, func() int64 { return now }))

	r, err := FetchFresh(context.Background(), peg, now, 60)
	require.NoError(t, err)
	assert.Equal(t, dec("1").String(), r.Value.String())
	assert.Equal(t, now, r.Timestamp)

	_, err = NewDirect("zero", NewPegFeed(sdkmath.ZeroInt(), 6, func() int64 { return now })).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}
