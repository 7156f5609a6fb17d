package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestObserveTx(t *testing.T) {
	start := time.Now().Add(-time.Millisecond)
	if inc := delta(t, txExecutedTotal.WithLabelValues("buy_books", "success"), func() {
		ObserveTx("buy_books", nil, start)
	}); inc != 1 {
		t.Fatalf("expected success increment, got %v", inc)
	}
	if inc := delta(t, txExecutedTotal.WithLabelValues("buy_books", "error"), func() {
		ObserveTx("buy_books", errors.New("boom"), start)
	}); inc != 1 {
		t.Fatalf("expected error increment, got %v", inc)
	}
}

func TestSaleCounters(t *testing.T) {
	if inc := delta(t, booksAllocatedTotal.WithLabelValues("3"), func() {
		BooksAllocated("3", 4)
	}); inc != 4 {
		t.Fatalf("expected 4 allocations, got %v", inc)
	}
	if inc := delta(t, booksOpenedTotal, BookOpened); inc != 1 {
		t.Fatalf("expected one redemption, got %v", inc)
	}
}

func TestBlockAndRPC(t *testing.T) {
	if inc := delta(t, blocksProducedTotal.WithLabelValues("error"), func() {
		ObserveBlock(errors.New("bad tx"), 3)
	}); inc != 1 {
		t.Fatalf("expected block error increment, got %v", inc)
	}
	SetMempoolSize(7)
	if got := testutil.ToFloat64(mempoolSize); got != 7 {
		t.Fatalf("mempool gauge: got %v", got)
	}
	if inc := delta(t, rpcRequestsTotal.WithLabelValues("unknown", "success"), func() {
		ObserveRPC("", nil)
	}); inc != 1 {
		t.Fatalf("expected rpc increment, got %v", inc)
	}
}
