package screener

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"apy-alerts/internal/fetcher"
)

func samplePools() []fetcher.Pool {
	return []fetcher.Pool{
		{ID: "aave-v3-ethereum-usdc", Chain: "Ethereum", Project: "aave-v3", Symbol: "USDC", APY: decimal.NewFromFloat(5.2)},
		{ID: "aave-v2-ethereum-dai", Chain: "Ethereum", Project: "aave-v2", Symbol: "DAI", APY: decimal.NewFromFloat(3.1)},
		{ID: "compound-usdc", Chain: "Ethereum", Project: "compound", Symbol: "USDC", APY: decimal.NewFromFloat(7.7)},
		{ID: "aave-v3-base-weth", Chain: "Base", Project: "aave-v3", Symbol: "WETH", APY: decimal.NewFromFloat(2.0)},
	}
}

func TestFilterByPoolID(t *testing.T) {
	s := New(Options{PoolIDs: []string{"aave-v3-ethereum-usdc", "aave-v3-polygon-usdc"}})

	matched, missing := s.Filter(samplePools())
	if len(matched) != 1 || matched[0].ID != "aave-v3-ethereum-usdc" {
		t.Fatalf("按 pool id 过滤结果不正确: %+v", matched)
	}
	if !reflect.DeepEqual(missing, []string{"aave-v3-polygon-usdc"}) {
		t.Fatalf("缺失池列表不正确: %v", missing)
	}
}

func TestFilterBySymbolExact(t *testing.T) {
	s := New(Options{
		Projects: []string{"aave-v2", "aave-v3"},
		Symbols:  []string{"usdc", "DAI"},
	})

	matched, _ := s.Filter(samplePools())
	if len(matched) != 2 {
		t.Fatalf("期望 2 个池, 实际 %d", len(matched))
	}
	// compound-usdc excluded by project, WETH by symbol.
	if matched[0].ID != "aave-v3-ethereum-usdc" || matched[1].ID != "aave-v2-ethereum-dai" {
		t.Fatalf("应保持输入顺序: %+v", matched)
	}
}

func TestFilterBySymbolSubstring(t *testing.T) {
	pools := []fetcher.Pool{
		{ID: "p1", Project: "aave-v3", Symbol: "USDC-WETH"},
		{ID: "p2", Project: "aave-v3", Symbol: "WBTC"},
	}

	s := New(Options{Symbols: []string{"USDC"}, SymbolMatch: MatchSubstring})
	matched, _ := s.Filter(pools)
	if len(matched) != 1 || matched[0].ID != "p1" {
		t.Fatalf("子串匹配结果不正确: %+v", matched)
	}

	s = New(Options{Symbols: []string{"USDC"}, SymbolMatch: MatchExact})
	matched, _ = s.Filter(pools)
	if len(matched) != 0 {
		t.Fatalf("精确匹配不应命中组合符号: %+v", matched)
	}
}

func TestFilterChainConstraint(t *testing.T) {
	s := New(Options{Symbols: []string{"WETH"}, Chains: []string{"base"}})

	matched, _ := s.Filter(samplePools())
	if len(matched) != 1 || matched[0].ID != "aave-v3-base-weth" {
		t.Fatalf("链过滤结果不正确: %+v", matched)
	}
}

func TestFilterIdempotent(t *testing.T) {
	s := New(Options{
		PoolIDs: []string{"aave-v3-ethereum-usdc"},
		Symbols: []string{"DAI"},
	})

	once, _ := s.Filter(samplePools())
	twice, _ := s.Filter(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("过滤应幂等: %+v vs %+v", once, twice)
	}
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	threshold := decimal.NewFromFloat(4.0)
	pools := []fetcher.Pool{
		{ID: "above", Symbol: "USDC", APY: decimal.NewFromFloat(5.2)},
		{ID: "equal", Symbol: "USDT", APY: decimal.NewFromFloat(4.0)},
		{ID: "below", Symbol: "DAI", APY: decimal.NewFromFloat(3.1)},
	}

	results := Evaluate(pools, threshold)
	if len(results) != 3 {
		t.Fatalf("期望 3 个结果, 实际 %d", len(results))
	}

	expected := []bool{true, true, false}
	for i, res := range results {
		if res.AlertTriggered != expected[i] {
			t.Fatalf("池 %s 的告警标记应为 %t", res.Pool.ID, expected[i])
		}
		if !res.Threshold.Equal(threshold) {
			t.Fatalf("阈值应透传到结果")
		}
	}
}

func TestEvaluatePure(t *testing.T) {
	pools := []fetcher.Pool{{ID: "a", APY: decimal.NewFromFloat(1.0)}}
	before := pools[0]

	_ = Evaluate(pools, decimal.NewFromFloat(5.0))
	if !reflect.DeepEqual(before, pools[0]) {
		t.Fatal("Evaluate 不应修改输入")
	}
}
