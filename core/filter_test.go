package core

import "testing"

func coinID(b byte) CoinID {
	var id CoinID
	id[0] = b
	return id
}

func TestTransactionsFilterContainsMembersOnly(t *testing.T) {
	member := coinID(1)
	other := coinID(2)
	f := NewTransactionsFilter([]CoinID{member, coinID(5), coinID(3)})

	if !f.Contains(member) {
		t.Fatal("expected member to be contained")
	}
	if f.Contains(other) {
		t.Fatal("expected non-member to be absent")
	}
}

func TestTransactionsFilterNilIsEmpty(t *testing.T) {
	var f *TransactionsFilter
	if f.Contains(coinID(1)) {
		t.Fatal("nil filter must report no members")
	}
}

func TestTransactionsFilterRootIsOrderIndependent(t *testing.T) {
	a := NewTransactionsFilter([]CoinID{coinID(1), coinID(2), coinID(3)})
	b := NewTransactionsFilter([]CoinID{coinID(3), coinID(1), coinID(2)})
	if a.Root() != b.Root() {
		t.Fatal("Root should not depend on input order")
	}
}

func TestTransactionsFilterBytesRoundTrip(t *testing.T) {
	f := NewTransactionsFilter([]CoinID{coinID(1), coinID(9), coinID(4)})
	decoded, err := TransactionsFilterFromBytes(f.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Contains(coinID(1)) || !decoded.Contains(coinID(9)) || !decoded.Contains(coinID(4)) {
		t.Fatal("decoded filter lost members")
	}
	if decoded.Contains(coinID(2)) {
		t.Fatal("decoded filter gained a spurious member")
	}
}

func TestTransactionRecordIsResendCandidate(t *testing.T) {
	cases := []struct {
		name string
		rec  *TransactionRecord
		want bool
	}{
		{"nil record", nil, false},
		{"no bundle", &TransactionRecord{ID: "a"}, false},
		{"confirmed", &TransactionRecord{ID: "a", SpendBundle: &SpendBundle{}, Confirmed: true}, false},
		{"pending", &TransactionRecord{ID: "a", SpendBundle: &SpendBundle{}}, true},
	}
	for _, c := range cases {
		if got := c.rec.IsResendCandidate(); got != c.want {
			t.Errorf("%s: IsResendCandidate() = %v, want %v", c.name, got, c.want)
		}
	}
}
