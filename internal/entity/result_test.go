package entity

import (
	"encoding/json"
	"testing"
)

func TestDetectedObjectsKeepServerOrder(t *testing.T) {
	raw := `{"signature":{"confidence":0.97,"cropped_image":"AAA"},"account_number":{"confidence":0.5},"amount":{"confidence":0.1}}`
	var d DetectedObjects
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"signature", "account_number", "amount"}
	if len(d) != len(want) {
		t.Fatalf("got %d detections, want %d", len(d), len(want))
	}
	for i, name := range want {
		if d[i].ClassName != name {
			t.Errorf("detection %d = %q, want %q", i, d[i].ClassName, name)
		}
	}
	if d[0].Object.CroppedImage != "AAA" || d[0].Object.Confidence != 0.97 {
		t.Errorf("signature decoded as %+v", d[0].Object)
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"signature":{"confidence":0.97,"cropped_image":"AAA"},"account_number":{"confidence":0.5},"amount":{"confidence":0.1}}` {
		t.Errorf("marshal changed order: %s", out)
	}
}

func TestDetectedObjectsRepeatedKeyReplacesInPlace(t *testing.T) {
	var d DetectedObjects
	if err := json.Unmarshal([]byte(`{"a":{"confidence":0.1},"b":{"confidence":0.2},"a":{"confidence":0.9}}`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(d) != 2 || d[0].ClassName != "a" || d[0].Object.Confidence != 0.9 {
		t.Fatalf("got %+v", d)
	}
}

func TestDetectedObjectsNullAndInvalid(t *testing.T) {
	d := DetectedObjects{{ClassName: "x"}}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if d != nil {
		t.Errorf("null should clear detections, got %+v", d)
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &d); err == nil {
		t.Error("expected error for a JSON array")
	}
}

func TestDetectedObjectsGet(t *testing.T) {
	d := DetectedObjects{{ClassName: "signature", Object: DetectedObject{Confidence: 0.8}}}
	if obj, ok := d.Get("signature"); !ok || obj.Confidence != 0.8 {
		t.Errorf("Get(signature) = %+v, %v", obj, ok)
	}
	if _, ok := d.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestStatusResponseResult(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantOCR string
		wantErr bool
	}{
		{name: "absent", data: ""},
		{name: "null", data: "null"},
		{name: "full", data: `{"ocr_result":"123456789","detected_objects":{"signature":{"confidence":0.97}}}`, wantOCR: "123456789"},
		{name: "wrong type", data: `{"ocr_result":5}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := StatusResponse{Status: "success", Data: json.RawMessage(tt.data)}
			got, err := resp.Result()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Result: %v", err)
			}
			if got == nil {
				t.Fatal("nil result")
			}
			if got.OCRResult != tt.wantOCR {
				t.Errorf("OCRResult = %q, want %q", got.OCRResult, tt.wantOCR)
			}
		})
	}
}
