package zarr

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

// https://zarr.readthedocs.io/en/stable/spec/v2.html#metadata
const specExample = `{
  "chunks": [
    1000,
    1000
  ],
	"compressor": {
			"id": "blosc",
			"cname": "lz4",
			"clevel": 5,
			"shuffle": 1
	},
	"dtype": "<f8",
	"fill_value": "NaN",
	"filters": [
			{"id": "delta", "dtype": "<f8", "astype": "<f4"}
	],
	"order": "C",
	"shape": [
			10000,
			10000
	],
	"zarr_format": 2
}`

func TestMetadataSerialization(t *testing.T) {
	m := &ArrayMeta{}
	err := json.Unmarshal([]byte(specExample), m)
	if err != nil {
		t.Fatal(err)
	}
	if m.Compressor == nil || m.Compressor.ID != CodecBlosc || m.Compressor.Cname != "lz4" {
		t.Errorf("unexpected compressor: %#v", m.Compressor)
	}
	if len(m.Filters) != 1 || m.Filters[0].ID != "delta" || m.Filters[0].AsType != "<f4" {
		t.Errorf("unexpected filters: %#v", m.Filters)
	}
	if m.Dtype.Dtype.BasicType != BTFloatingPoint || m.Dtype.Dtype.ByteSize != 8 {
		t.Errorf("unexpected dtype: %s", m.Dtype.Dtype)
	}
	if err := m.validate(); err != nil {
		t.Errorf("validate: %s", err)
	}
	f, ok := m.FillFloat()
	if !ok || !math.IsNaN(f) {
		t.Errorf("expected NaN fill value, got %v", m.FillValue)
	}
}

func TestMetadataNullCompressor(t *testing.T) {
	m := &ArrayMeta{}
	doc := `{"chunks":[2],"compressor":null,"dtype":"|b1","fill_value":false,"filters":null,"order":"F","shape":[5],"zarr_format":2}`
	if err := json.Unmarshal([]byte(doc), m); err != nil {
		t.Fatal(err)
	}
	if m.Compressor != nil {
		t.Errorf("expected nil compressor, got %#v", m.Compressor)
	}
	fill, err := m.fillBytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(fill) != 1 || fill[0] != 0 {
		t.Errorf("unexpected fill bytes %v", fill)
	}
}

func TestMetadataValidate(t *testing.T) {
	cases := []struct {
		name string
		meta ArrayMeta
	}{
		{"chunk rank", ArrayMeta{ZarrFormat: 2, Shape: []int{4, 4}, Chunks: []int{4}, Order: "C"}},
		{"zero chunk", ArrayMeta{ZarrFormat: 2, Shape: []int{4}, Chunks: []int{0}, Order: "C"}},
		{"order", ArrayMeta{ZarrFormat: 2, Shape: []int{4}, Chunks: []int{4}, Order: "X"}},
		{"format", ArrayMeta{ZarrFormat: 3, Shape: []int{4}, Chunks: []int{4}, Order: "C"}},
	}
	for _, c := range cases {
		c.meta.Dtype = StructuredType{Dtype: Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 4}}
		if err := c.meta.validate(); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}
}

const consolidatedExample = `{
  "metadata": {
    ".zattrs": {"title": "minian"},
    ".zgroup": {"zarr_format": 2},
    "C/.zarray": {"chunks": [10, 5], "compressor": null, "dtype": "<f4", "fill_value": "NaN", "filters": null, "order": "C", "shape": [10, 5], "zarr_format": 2},
    "C/.zattrs": {"_ARRAY_DIMENSIONS": ["frame", "unit_id"]},
    "frame/.zarray": {"chunks": [10], "compressor": null, "dtype": "<i8", "fill_value": null, "filters": null, "order": "C", "shape": [10], "zarr_format": 2},
    "frame/.zattrs": {"_ARRAY_DIMENSIONS": ["frame"]}
  },
  "zarr_consolidated_format": 1
}`

func TestConsolidatedMetadata(t *testing.T) {
	cm := &ConsolidatedMetadata{}
	if err := json.NewDecoder(strings.NewReader(consolidatedExample)).Decode(cm); err != nil {
		t.Fatal(err)
	}
	if cm.ConsolidatedFormat != 1 {
		t.Errorf("expected consolidated format 1, got %d", cm.ConsolidatedFormat)
	}
	if _, ok := cm.Metadata[".zgroup"].(Group); !ok {
		t.Errorf("expected group entry, got %T", cm.Metadata[".zgroup"])
	}
	attrs, ok := cm.Metadata["C/.zattrs"].(Attributes)
	if !ok {
		t.Fatalf("expected attributes entry, got %T", cm.Metadata["C/.zattrs"])
	}
	if _, ok := attrs["_ARRAY_DIMENSIONS"]; !ok {
		t.Errorf("missing dimensions attribute: %v", attrs)
	}

	arrays := cm.Arrays("")
	if len(arrays) != 2 {
		t.Errorf("expected 2 arrays, got %v", arrays)
	}
}

func TestConsolidatedMetadataBadKey(t *testing.T) {
	cm := &ConsolidatedMetadata{}
	err := json.Unmarshal([]byte(`{"metadata": {"C/.nope": {}}, "zarr_consolidated_format": 1}`), cm)
	if err == nil {
		t.Error("expected error for unknown metadata key")
	}
}

func TestParseDtype(t *testing.T) {
	cases := []struct {
		in       string
		bt       BasicType
		size     int
		itemSize int
		units    string
	}{
		{"<f8", BTFloatingPoint, 8, 8, ""},
		{"|b1", BTBoolean, 1, 1, ""},
		{"&lt;i4", BTInteger, 4, 4, ""},
		{"<M8[ns]", BTDatetime, 8, 8, "[ns]"},
		{"<U12", BTUnicode, 12, 48, ""},
		{"|S4", BTString, 4, 4, ""},
	}
	for _, c := range cases {
		dt, err := ParseDtype(c.in)
		if err != nil {
			t.Errorf("%s: %s", c.in, err)
			continue
		}
		if dt.BasicType != c.bt || dt.ByteSize != c.size || dt.ItemSize() != c.itemSize || dt.Units != c.units {
			t.Errorf("%s: unexpected dtype %#v", c.in, dt)
		}
	}

	for _, bad := range []string{"f8", "<q8", "*f8", "<M8[ns"} {
		if _, err := ParseDtype(bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

// python:
//
//	np.dtype([("r", "|u1"), ("xy", "<f4", (2,))]).descr
//	[('r', '|u1'), ('xy', '<f4', (2,))]
const structuredExample = `[["r", "|u1"], ["xy", "<f4", [2]]]`

func TestStructuredType(t *testing.T) {
	st := StructuredType{}
	if err := json.Unmarshal([]byte(structuredExample), &st); err != nil {
		t.Fatal(err)
	}
	if st.IsBasic() || st.Human() != "struct" || len(st.Children) != 2 {
		t.Fatalf("unexpected record %#v", st)
	}
	xy := st.Children[1]
	if xy.Fieldname != "xy" || xy.Dtype.BasicType != BTFloatingPoint || len(xy.Shape) != 1 || xy.Shape[0] != 2 {
		t.Errorf("unexpected field %#v", xy)
	}

	out, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[["r","|u1"],["xy","<f4",[2]]]` {
		t.Errorf("unexpected encoding %s", out)
	}

	for _, bad := range []string{`[]`, `[["r"]]`, `[["r", "|u1", 2]]`, `[["r", 3]]`, `[["r", "<f4", [1.5]]]`} {
		err := json.Unmarshal([]byte(bad), &StructuredType{})
		if !errors.Is(err, ErrInvalidDtype) {
			t.Errorf("%s: expected ErrInvalidDtype, got %v", bad, err)
		}
	}
	if _, err := ParseDtype("<q8"); !errors.Is(err, ErrInvalidDtype) {
		t.Errorf("expected ErrInvalidDtype, got %v", err)
	}
}
