package arbor

import (
	"testing"

	"github.com/ValentinKolb/dDS/lib/db"
	dbtesting "github.com/ValentinKolb/dDS/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "ArborDB", func() db.KVDB {
		return NewArborDB(nil)
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunKVDBBenchmarks(t, "ArborDB", func() db.KVDB {
		return NewArborDB(nil)
	})
}
