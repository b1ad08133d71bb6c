package extractapi

// BuildStatusJSONSchema returns the JSON-Schema (draft 2020-12 subset) every
// GET /result/{task_id} body must satisfy, whatever its status.
func BuildStatusJSONSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"status"},
		"properties": map[string]any{
			"status":  map[string]any{"type": "string"},
			"message": nullable("string"),
			"data":    nullable("object"),
		},
	}
}

// BuildResultJSONSchema returns the schema for the data member of a successful task.
func BuildResultJSONSchema() map[string]any {
	object := map[string]any{
		"type":     "object",
		"required": []string{"confidence"},
		"properties": map[string]any{
			"confidence":    map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"cropped_image": nullable("string"),
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ocr_result":    nullable("string"),
			"labeled_image": nullable("string"),
			"detected_objects": map[string]any{
				"type":                 []string{"object", "null"},
				"additionalProperties": object,
			},
		},
	}
}

// BuildSubmitJSONSchema returns the schema for a 2xx POST /extract body.
func BuildSubmitJSONSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"task_id"},
		"properties": map[string]any{
			"task_id": map[string]any{"type": "string", "minLength": 1},
		},
	}
}

func nullable(typ string) map[string]any {
	return map[string]any{"type": []string{typ, "null"}}
}
