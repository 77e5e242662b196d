package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Deadlines", func(t *testing.T) {
			testDeadlines(t, factory())
		})

		t.Run("Expire", func(t *testing.T) {
			testExpire(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			testSetEIfUnset(t, factory())
		})

		t.Run("WriteIndexOrdering", func(t *testing.T) {
			testWriteIndexOrdering(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentUsage", func(t *testing.T) {
			testConcurrentUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// deadlineIn returns an absolute unix-ms deadline d from now
func deadlineIn(d time.Duration) uint64 {
	return uint64(time.Now().Add(d).UnixMilli())
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// mutating the returned slice must not corrupt the stored value
	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'
	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDeadlines(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureHas)

	testKey := "expiring-key"
	testValue := []byte("expiring-value")

	database.SetE(testKey, testValue, 1, deadlineIn(60*time.Millisecond), deadlineIn(150*time.Millisecond))

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Key should exist before the expiration deadline (get)")
	}
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected value %s, got %s", testValue, result)
	}
	if !database.Has(testKey) {
		t.Errorf("Key should exist before the expiration deadline (has)")
	}

	time.Sleep(80 * time.Millisecond)

	if _, exists = database.Get(testKey); exists {
		t.Errorf("Key should be expired (get)")
	}
	if !database.Has(testKey) {
		t.Errorf("Expired key must still be visible to Has")
	}

	time.Sleep(100 * time.Millisecond)

	if _, exists = database.Get(testKey); exists {
		t.Errorf("Key should be deleted (get)")
	}
	if database.Has(testKey) {
		t.Errorf("Key should be deleted (has)")
	}

	// deadline 0 means never
	database.SetE("immortal-key", testValue, 2, 0, 0)
	time.Sleep(20 * time.Millisecond)
	if _, exists = database.Get("immortal-key"); !exists {
		t.Errorf("Key with zero deadlines must never expire")
	}
}

func testExpire(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureExpire)

	testKey := "expire-test-key"
	testValue := []byte("expire-test-value")

	database.Set(testKey, testValue, 1)

	if _, exists := database.Get(testKey); !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	database.Expire(testKey, 2)

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not be readable after Expire", testKey)
	}
	if !database.Has(testKey) {
		t.Errorf("Expected key %s to still be visible to Has after Expire", testKey)
	}

	// expiring a nonexistent key must not create it
	database.Expire("nonexistent-key", 3)
	if database.Has("nonexistent-key") {
		t.Errorf("Expire must not create a key")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "delete-test-key"
	testValue := []byte("delete-test-value")

	database.Set(testKey, testValue, 1)

	if _, exists := database.Get(testKey); !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	database.Delete(testKey, 2)

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}
	if database.Has(testKey) {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	database.Delete("nonexistent-key", 3)
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureHas)

	testKey := "has-exists-test-key"
	testValue := []byte("has-exists-test-value")

	if database.Has(testKey) {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	database.Set(testKey, testValue, 1)

	if !database.Has(testKey) {
		t.Errorf("Expected Has to return true after Set")
	}
}

func testSetEIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetEIfUnset)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value")
	testValue2 := []byte("test-value2")

	database.SetEIfUnset(testKey, testValue1, 1, 0, deadlineIn(80*time.Millisecond))

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after SetEIfUnset", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	// a second conditional write against a live entry must be a no-op
	database.SetEIfUnset(testKey, testValue2, 2, 0, 0)

	result, _ = database.Get(testKey)
	if !bytes.Equal(result, testValue1) {
		t.Errorf("SetEIfUnset overwrote a live entry: got %s", result)
	}

	// once the entry is past its deletion deadline the key counts as unset
	time.Sleep(100 * time.Millisecond)

	database.SetEIfUnset(testKey, testValue2, 3, 0, 0)
	result, exists = database.Get(testKey)
	if !exists || !bytes.Equal(result, testValue2) {
		t.Errorf("SetEIfUnset must succeed after the previous entry was deleted, got %s (exists=%v)", result, exists)
	}
}

func testWriteIndexOrdering(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "ordering-key"

	database.Set(testKey, []byte("newer"), 10)
	// replayed older write must not clobber the newer entry
	database.Set(testKey, []byte("older"), 5)

	result, _ := database.Get(testKey)
	if !bytes.Equal(result, []byte("newer")) {
		t.Errorf("Expected older replayed write to be ignored, got %s", result)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureSave)
	requireFeature(t, database, db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.Set(fmt.Sprintf("save-key-%d", i), []byte(fmt.Sprintf("save-value-%d", i)), uint64(i))
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-key-%d", i)
		want := []byte(fmt.Sprintf("save-value-%d", i))
		got, exists := database2.Get(key)
		if !exists {
			t.Fatalf("Key %s missing after Load", key)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Key %s: expected %s, got %s", key, want, got)
		}
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	// empty value
	database.Set("empty-value-key", []byte{}, 1)
	val, exists := database.Get("empty-value-key")
	if !exists {
		t.Errorf("Expected empty value to be stored")
	}
	if len(val) != 0 {
		t.Errorf("Expected empty value, got %v", val)
	}

	// empty key
	database.Set("", []byte("empty-key-value"), 2)
	val, exists = database.Get("")
	if !exists || !bytes.Equal(val, []byte("empty-key-value")) {
		t.Errorf("Expected empty key to work, got %v (exists=%v)", val, exists)
	}

	// large value (1 MB)
	large := make([]byte, 1<<20)
	for i := range large {
		large[i] = byte(i % 251)
	}
	database.Set("large-value-key", large, 3)
	val, exists = database.Get("large-value-key")
	if !exists || !bytes.Equal(val, large) {
		t.Errorf("Large value round trip failed (exists=%v, len=%d)", exists, len(val))
	}
}

func testConcurrentUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	const goroutines = 8
	const keysPerGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < keysPerGoroutine; i++ {
				key := fmt.Sprintf("conc-%d-%d", g, i)
				database.Set(key, []byte(key), uint64(g*keysPerGoroutine+i))
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < goroutines; g++ {
		for i := 0; i < keysPerGoroutine; i++ {
			key := fmt.Sprintf("conc-%d-%d", g, i)
			val, exists := database.Get(key)
			if !exists || !bytes.Equal(val, []byte(key)) {
				t.Fatalf("Key %s lost or corrupted under concurrent writes", key)
			}
		}
	}
}
