package ai

import "github.com/santhosh-tekuri/jsonschema/v5"

var (
	gradeBatchSchema = jsonschema.MustCompileString("grade_batch.json", `{
		"type": "object",
		"required": ["results"],
		"properties": {
			"results": {"type": "array"}
		}
	}`)

	gradeItemSchema = jsonschema.MustCompileString("grade_item.json", `{
		"type": "object",
		"required": ["id", "score"],
		"properties": {
			"id": {"type": ["string", "integer"]},
			"score": {"type": "number"},
			"remarks": {"type": "string"}
		}
	}`)

	reportSchema = jsonschema.MustCompileString("integrity_report.json", `{
		"type": "object",
		"required": ["assessment", "summary"],
		"properties": {
			"trust_score_estimate": {"type": ["number", "null"]},
			"assessment": {"type": "string"},
			"summary": {"type": "string"},
			"suspicious_moments": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["description"],
					"properties": {
						"timestamp": {"type": "string"},
						"description": {"type": "string"}
					}
				}
			}
		}
	}`)
)
