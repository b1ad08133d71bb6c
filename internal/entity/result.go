package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/cheque-extractor/constants"
)

// DetectedObject is one labeled region reported by the detector.
type DetectedObject struct {
	Confidence   float64 `json:"confidence"`
	CroppedImage string  `json:"cropped_image,omitempty"` // base64 JPEG
}

// ClassDetection pairs a detected class name with its object.
type ClassDetection struct {
	ClassName string
	Object    DetectedObject
}

// DetectedObjects is the class-name → object mapping of a result. It keeps the order in
// which the server listed the classes so cards render in a stable order.
type DetectedObjects []ClassDetection

// UnmarshalJSON decodes a JSON object while preserving key order. A repeated key replaces
// the earlier entry in place.
func (d *DetectedObjects) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*d = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("detected_objects: expected JSON object")
	}

	out := DetectedObjects{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var obj DetectedObject
		if err := dec.Decode(&obj); err != nil {
			return fmt.Errorf("detected_objects[%q]: %w", key, err)
		}
		if i, seen := index[key]; seen {
			out[i].Object = obj
			continue
		}
		index[key] = len(out)
		out = append(out, ClassDetection{ClassName: key, Object: obj})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// MarshalJSON encodes the detections as a JSON object in their stored order.
func (d DetectedObjects) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cd := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(cd.ClassName)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(cd.Object)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the object detected for className.
func (d DetectedObjects) Get(className string) (DetectedObject, bool) {
	for _, cd := range d {
		if cd.ClassName == className {
			return cd.Object, true
		}
	}
	return DetectedObject{}, false
}

// ExtractionResult is the payload of a successful task.
type ExtractionResult struct {
	OCRResult       string          `json:"ocr_result,omitempty"`
	DetectedObjects DetectedObjects `json:"detected_objects,omitempty"`
	LabeledImage    string          `json:"labeled_image,omitempty"` // base64 JPEG
}

// StatusResponse is the body of GET /result/{task_id}.
type StatusResponse struct {
	Status  constants.TaskStatus `json:"status"`
	Data    json.RawMessage      `json:"data,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Result decodes Data as an ExtractionResult. An absent or null data member yields an empty
// result.
func (r StatusResponse) Result() (*ExtractionResult, error) {
	out := &ExtractionResult{}
	if len(r.Data) == 0 || bytes.Equal(bytes.TrimSpace(r.Data), []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return nil, fmt.Errorf("decode extraction result: %w", err)
	}
	return out, nil
}
