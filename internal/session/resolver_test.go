package session

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"SSOWallet-Chain/internal/codec"
)

var (
	testModule  = common.HexToAddress("0xaaaa00000000000000000000000000000000aaaa")
	testAccount = common.HexToAddress("0xbbbb00000000000000000000000000000000bbbb")
	testSigner  = common.HexToAddress("0xcccc00000000000000000000000000000000cccc")
)

// encodeSpecData packs a spec the way the contract emits it, through the
// package's own ABI encoder. parseCreatedLog decodes it back through the
// go-ethereum path, so the round trip also cross-checks the two codecs.
func encodeSpecData(t *testing.T, spec *Spec) []byte {
	t.Helper()
	params := SpecParams()[:1]
	data, err := codec.EncodeParams(params, []any{spec.Values()})
	if err != nil {
		t.Fatalf("encode spec: %v", err)
	}
	return data
}

func createdLog(t *testing.T, spec *Spec, hash common.Hash, block uint64) coretypes.Log {
	t.Helper()
	return coretypes.Log{
		Address: testModule,
		Topics: []common.Hash{
			CreatedTopic(),
			common.BytesToHash(testAccount.Bytes()),
			hash,
		},
		Data:        encodeSpecData(t, spec),
		BlockNumber: block,
	}
}

func revokedLog(hash common.Hash, block uint64) coretypes.Log {
	return coretypes.Log{
		Address: testModule,
		Topics: []common.Hash{
			RevokedTopic(),
			common.BytesToHash(testAccount.Bytes()),
			hash,
		},
		BlockNumber: block,
	}
}

func testSpec(expiresAt int64) *Spec {
	return &Spec{
		Signer:    testSigner,
		ExpiresAt: big.NewInt(expiresAt),
		FeeLimit:  UsageLimit{LimitType: LimitLifetime, Limit: big.NewInt(1e15), Period: big.NewInt(0)},
		CallPolicies: []CallPolicy{
			{
				Target:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
				Selector:       [4]byte{0xa9, 0x05, 0x9c, 0xbb},
				MaxValuePerUse: big.NewInt(0),
				ValueLimit:     UsageLimit{LimitType: LimitAllowance, Limit: big.NewInt(100), Period: big.NewInt(3600)},
				Constraints: []Constraint{
					{
						Condition: ConditionLessEqual,
						Index:     1,
						RefValue:  common.HexToHash("0x64"),
						Limit:     UsageLimit{LimitType: LimitUnlimited, Limit: big.NewInt(0), Period: big.NewInt(0)},
					},
				},
			},
		},
		TransferPolicies: []TransferPolicy{
			{
				Target:         common.Address{},
				MaxValuePerUse: big.NewInt(1e9),
				ValueLimit:     UsageLimit{LimitType: LimitUnlimited, Limit: big.NewInt(0), Period: big.NewInt(0)},
			},
		},
	}
}

type stubSource struct {
	logs       []coretypes.Log
	failTopics bool
	failRecent bool
	head       uint64
	queries    []ethereum.FilterQuery
}

func (s *stubSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]coretypes.Log, error) {
	s.queries = append(s.queries, q)
	if len(q.Topics) > 0 {
		if s.failTopics {
			return nil, context.DeadlineExceeded
		}
		return s.logs, nil
	}
	if s.failRecent {
		// only the first range query (the recent-window fallback) fails
		s.failRecent = false
		return nil, context.DeadlineExceeded
	}
	var out []coretypes.Log
	for _, log := range s.logs {
		if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (s *stubSource) BlockNumber(ctx context.Context) (uint64, error) {
	return s.head, nil
}

func newTestResolver(source LogSource) *Resolver {
	r := NewResolver(source, testModule, slog.Default())
	r.now = func() time.Time { return time.Unix(1_000_000, 0) }
	return r
}

func TestActiveSessionRoundTrip(t *testing.T) {
	spec := testSpec(2_000_000)
	hash := common.HexToHash("0x01")
	source := &stubSource{logs: []coretypes.Log{createdLog(t, spec, hash, 100)}, head: 150}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got == nil {
		t.Fatal("expected an active session")
	}
	if got.SessionHash != hash {
		t.Fatalf("session hash = %s, want %s", got.SessionHash, hash)
	}
	if got.BlockNumber != 100 {
		t.Fatalf("block = %d, want 100", got.BlockNumber)
	}
	if got.Spec.Signer != testSigner {
		t.Fatalf("signer = %s, want %s", got.Spec.Signer, testSigner)
	}
	if got.Spec.ExpiresAt.Int64() != 2_000_000 {
		t.Fatalf("expiresAt = %s, want 2000000", got.Spec.ExpiresAt)
	}
	if len(got.Spec.CallPolicies) != 1 {
		t.Fatalf("call policies = %d, want 1", len(got.Spec.CallPolicies))
	}
	cp := got.Spec.CallPolicies[0]
	if cp.Selector != [4]byte{0xa9, 0x05, 0x9c, 0xbb} {
		t.Fatalf("selector = %x", cp.Selector)
	}
	if cp.ValueLimit.LimitType != LimitAllowance || cp.ValueLimit.Period.Int64() != 3600 {
		t.Fatalf("value limit not preserved: %+v", cp.ValueLimit)
	}
	if len(cp.Constraints) != 1 || cp.Constraints[0].RefValue != common.HexToHash("0x64") {
		t.Fatalf("constraints not preserved: %+v", cp.Constraints)
	}
	if len(got.Spec.TransferPolicies) != 1 || got.Spec.TransferPolicies[0].Target != (common.Address{}) {
		t.Fatalf("transfer policies not preserved: %+v", got.Spec.TransferPolicies)
	}
}

func TestActiveSessionNewestWins(t *testing.T) {
	older := common.HexToHash("0x01")
	newer := common.HexToHash("0x02")
	source := &stubSource{
		logs: []coretypes.Log{
			createdLog(t, testSpec(2_000_000), older, 100),
			createdLog(t, testSpec(3_000_000), newer, 200),
		},
		head: 250,
	}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got == nil || got.SessionHash != newer {
		t.Fatalf("got %+v, want session %s", got, newer)
	}
}

func TestActiveSessionSkipsRevoked(t *testing.T) {
	older := common.HexToHash("0x01")
	newer := common.HexToHash("0x02")
	source := &stubSource{
		logs: []coretypes.Log{
			createdLog(t, testSpec(2_000_000), older, 100),
			createdLog(t, testSpec(3_000_000), newer, 200),
			revokedLog(newer, 300),
		},
		head: 350,
	}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got == nil || got.SessionHash != older {
		t.Fatalf("got %+v, want fallback to %s", got, older)
	}
}

func TestActiveSessionSkipsExpired(t *testing.T) {
	source := &stubSource{
		logs: []coretypes.Log{createdLog(t, testSpec(999_999), common.HexToHash("0x01"), 100)},
		head: 150,
	}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got != nil {
		t.Fatalf("expired session resolved: %+v", got)
	}
}

func TestActiveSessionSignerFilter(t *testing.T) {
	source := &stubSource{
		logs: []coretypes.Log{createdLog(t, testSpec(2_000_000), common.HexToHash("0x01"), 100)},
		head: 150,
	}
	r := newTestResolver(source)

	got, err := r.ActiveSession(context.Background(), testAccount, testSigner)
	if err != nil || got == nil {
		t.Fatalf("matching signer rejected: %v %v", got, err)
	}

	other := common.HexToAddress("0xdddd00000000000000000000000000000000dddd")
	got, err = r.ActiveSession(context.Background(), testAccount, other)
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got != nil {
		t.Fatalf("foreign signer resolved a session: %+v", got)
	}
}

func TestActiveSessionIgnoresOtherAccounts(t *testing.T) {
	foreign := createdLog(t, testSpec(2_000_000), common.HexToHash("0x01"), 100)
	foreign.Topics[1] = common.BytesToHash(common.HexToAddress("0xeeee00000000000000000000000000000000eeee").Bytes())
	source := &stubSource{logs: []coretypes.Log{foreign}, head: 150}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got != nil {
		t.Fatalf("foreign account session resolved: %+v", got)
	}
}

func TestActiveSessionSkipsMalformedLog(t *testing.T) {
	broken := coretypes.Log{
		Address: testModule,
		Topics: []common.Hash{
			CreatedTopic(),
			common.BytesToHash(testAccount.Bytes()),
			common.HexToHash("0x0bad"),
		},
		Data:        []byte{0x01, 0x02},
		BlockNumber: 300,
	}
	good := createdLog(t, testSpec(2_000_000), common.HexToHash("0x01"), 100)
	source := &stubSource{logs: []coretypes.Log{broken, good}, head: 350}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got == nil || got.SessionHash != common.HexToHash("0x01") {
		t.Fatalf("got %+v, want the parseable session", got)
	}
}

func TestFetchLogsFallsBackToRecentWindow(t *testing.T) {
	source := &stubSource{
		logs:       []coretypes.Log{createdLog(t, testSpec(2_000_000), common.HexToHash("0x01"), 4990)},
		failTopics: true,
		head:       5000,
	}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got == nil {
		t.Fatal("fallback window missed the session")
	}
	if len(source.queries) != 2 {
		t.Fatalf("queries = %d, want filtered attempt plus recent window", len(source.queries))
	}
	recent := source.queries[1]
	if recent.FromBlock.Uint64() != 4000 || recent.ToBlock.Uint64() != 5000 {
		t.Fatalf("recent window = [%s, %s], want [4000, 5000]", recent.FromBlock, recent.ToBlock)
	}
}

func TestFetchLogsFullScanLastResort(t *testing.T) {
	source := &stubSource{
		logs:       []coretypes.Log{createdLog(t, testSpec(2_000_000), common.HexToHash("0x01"), 50)},
		failTopics: true,
		failRecent: true,
		head:       25000,
	}

	got, err := newTestResolver(source).ActiveSession(context.Background(), testAccount, common.Address{})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if got == nil {
		t.Fatal("full scan missed the session")
	}
	// topic query + failed recent window + three 10000-block chunks
	if len(source.queries) != 5 {
		t.Fatalf("queries = %d, want 5", len(source.queries))
	}
}
