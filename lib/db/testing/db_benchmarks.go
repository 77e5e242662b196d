package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("SetWithDeadline", func(b *testing.B) {
		benchmarkSetWithDeadline(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Has", func(b *testing.B) {
		benchmarkHas(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

var benchCounter atomic.Uint64

func nextIdx() uint64 {
	return benchCounter.Add(1)
}

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet)

	value := []byte("benchmark-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			counter++
			database.Set(fmt.Sprintf("bench-key-%d-%d", rand.Int63(), counter), value, nextIdx())
		}
	})
}

// Benchmark for Set on an existing key
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet)

	value := []byte("benchmark-value")
	database.Set("bench-existing", value, nextIdx())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Set("bench-existing", value, nextIdx())
		}
	})
}

// Benchmark for SetE with deadlines set
func benchmarkSetWithDeadline(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSetE)

	value := []byte("benchmark-value")
	deadline := uint64(time.Now().Add(time.Hour).UnixMilli())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			counter++
			database.SetE(fmt.Sprintf("bench-exp-%d-%d", rand.Int63(), counter), value, nextIdx(), deadline, deadline)
		}
	})
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("bench-get-%d", i), []byte("benchmark-value"), nextIdx())
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			counter++
			database.Get(fmt.Sprintf("bench-get-%d", counter%numKeys))
		}
	})
}

// Benchmark for Has operation
func benchmarkHas(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureHas)

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("bench-has-%d", i), []byte("benchmark-value"), nextIdx())
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			counter++
			database.Has(fmt.Sprintf("bench-has-%d", counter%numKeys))
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureDelete)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			counter++
			key := fmt.Sprintf("bench-del-%d-%d", rand.Int63(), counter)
			database.Set(key, []byte("benchmark-value"), nextIdx())
			database.Delete(key, nextIdx())
		}
	})
}

// Benchmark for Save and Load operations
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)

	const numKeys = 10000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("bench-save-%d", i), []byte("benchmark-value"), nextIdx())
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		var buf bytes.Buffer
		if err := database.Save(&buf); err != nil {
			b.Fatal(err)
		}
		data := buf.Bytes()

		for i := 0; i < b.N; i++ {
			target := factory()
			if err := target.Load(bytes.NewReader(data)); err != nil {
				b.Fatal(err)
			}
			target.Close()
		}
	})
}

// Benchmark for a realistic read-heavy usage mix
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureHas|db.FeatureDelete)

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("bench-mixed-%d", i), []byte("benchmark-value"), nextIdx())
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			counter++
			key := fmt.Sprintf("bench-mixed-%d", counter%numKeys)
			switch counter % 10 {
			case 0:
				database.Set(key, []byte("updated-value"), nextIdx())
			case 1:
				database.Delete(key, nextIdx())
				database.Set(key, []byte("benchmark-value"), nextIdx())
			case 2:
				database.Has(key)
			default:
				database.Get(key)
			}
		}
	})
}
