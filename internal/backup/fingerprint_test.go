package backup

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_LastEditTimestamp(t *testing.T) {
	tests := []struct {
		name        string
		editingInfo map[string]interface{}
		expectMs    int64
		expectOK    bool
		expectError bool
	}{
		{name: "no editing info", editingInfo: nil},
		{name: "float date", editingInfo: map[string]interface{}{"lastEditDate": float64(1700000000000)}, expectMs: 1700000000000, expectOK: true},
		{name: "json number", editingInfo: map[string]interface{}{"lastEditDate": json.Number("42")}, expectMs: 42, expectOK: true},
		{name: "int64 date", editingInfo: map[string]interface{}{"lastEditDate": int64(7)}, expectMs: 7, expectOK: true},
		{name: "null date", editingInfo: map[string]interface{}{"lastEditDate": nil}},
		{name: "missing date", editingInfo: map[string]interface{}{"lastEditDate_": 1.0}, expectError: true},
		{name: "fractional date", editingInfo: map[string]interface{}{"lastEditDate": 1.5}, expectError: true},
		{name: "string date", editingInfo: map[string]interface{}{"lastEditDate": "yesterday"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Descriptor{ID: 1, Name: "roads", EditingInfo: tt.editingInfo}
			ms, ok, err := d.LastEditTimestamp()

			if tt.expectError {
				assert.Error(t, err)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectOK, ok)
			assert.Equal(t, tt.expectMs, ms)
		})
	}
}

func TestResolveFingerprint(t *testing.T) {
	t.Run("max across layers", func(t *testing.T) {
		fp, err := ResolveFingerprint(newTestItem("a1", 1000, 5000))
		require.NoError(t, err)
		assert.False(t, fp.IsAbsent())
		assert.Equal(t, int64(5000), fp.Millis())
	})

	t.Run("tables are considered", func(t *testing.T) {
		item := newTestItem("a2", 1000)
		item.Tables = []Descriptor{editedLayer(10, "inspections", 9000)}

		fp, err := ResolveFingerprint(item)
		require.NoError(t, err)
		assert.Equal(t, int64(9000), fp.Millis())
	})

	t.Run("no layers and no tables is absent", func(t *testing.T) {
		fp, err := ResolveFingerprint(newTestItem("b1"))
		require.NoError(t, err)
		assert.True(t, fp.IsAbsent())
	})

	t.Run("descriptors without editing info are ignored", func(t *testing.T) {
		item := newTestItem("b2", 3000)
		item.Layers = append(item.Layers, Descriptor{ID: 5, Name: "basemap"})

		fp, err := ResolveFingerprint(item)
		require.NoError(t, err)
		assert.Equal(t, int64(3000), fp.Millis())
	})

	t.Run("only null dates is absent", func(t *testing.T) {
		item := newTestItem("b3")
		item.Layers = []Descriptor{{ID: 0, Name: "l", EditingInfo: map[string]interface{}{"lastEditDate": nil}}}

		fp, err := ResolveFingerprint(item)
		require.NoError(t, err)
		assert.True(t, fp.IsAbsent())
	})

	t.Run("malformed editing info", func(t *testing.T) {
		item := newTestItem("c1", 1000)
		item.Tables = []Descriptor{{ID: 3, Name: "t", EditingInfo: map[string]interface{}{}}}

		_, err := ResolveFingerprint(item)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, BackupErrorTypeResolution))

		var be *BackupError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "c1", be.Context["item_id"])
	})

	t.Run("metadata load failure", func(t *testing.T) {
		item := newTestItem("c2", 1000)
		item.MetadataErr = errors.New("service unavailable")

		_, err := ResolveFingerprint(item)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, BackupErrorTypeResolution))
		assert.Contains(t, err.Error(), "service unavailable")
	})

	t.Run("nil item", func(t *testing.T) {
		_, err := ResolveFingerprint(nil)
		assert.True(t, IsErrorType(err, BackupErrorTypeResolution))
	})
}

func TestFingerprint_Values(t *testing.T) {
	absent := AbsentFingerprint()
	assert.True(t, absent.IsAbsent())
	assert.Equal(t, int64(0), absent.Millis())
	assert.Equal(t, AbsentMarker, absent.String())

	fp := FingerprintFromMillis(5000)
	assert.False(t, fp.IsAbsent())
	assert.Equal(t, "5000ms", fp.String())
	assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 5, 0, time.UTC), fp.Time(time.UTC))

	// Zero milliseconds is a real edit at the epoch, not absence
	assert.False(t, FingerprintFromMillis(0).IsAbsent())
	assert.NotEqual(t, AbsentFingerprint(), FingerprintFromMillis(0))
}

func TestFingerprint_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(AbsentFingerprint())
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = json.Marshal(FingerprintFromMillis(1234))
	require.NoError(t, err)
	assert.Equal(t, "1234", string(data))
}
