package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func pathParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}
}

func queryParam(name, description, typ string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      map[string]string{"type": typ},
	}
}

func jsonBody(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return map[string]interface{}{
		"required": len(required) > 0,
		"content":  map[string]interface{}{"application/json": map[string]interface{}{"schema": schema}},
	}
}

func operation(tag, summary string, params []map[string]interface{}, body map[string]interface{}, errorCodes ...int) map[string]interface{} {
	op := map[string]interface{}{
		"tags":    []string{tag},
		"summary": summary,
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	if body != nil {
		op["requestBody"] = body
	}
	resp := map[string]interface{}{
		"200": map[string]interface{}{"description": "Successful response", "content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": map[string]string{"$ref": "#/components/schemas/Success"}},
		}},
	}
	for _, code := range errorCodes {
		resp[strconv.Itoa(code)] = map[string]interface{}{"description": http.StatusText(code), "content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": map[string]string{"$ref": "#/components/schemas/Error"}},
		}}
	}
	op["responses"] = resp
	return op
}

var (
	str     = map[string]string{"type": "string"}
	number  = map[string]string{"type": "number"}
	object  = map[string]string{"type": "object"}
	strList = map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}}
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the Demand Forecast API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	datasetID := []map[string]interface{}{pathParam("id", "Dataset ID")}
	modelID := []map[string]interface{}{pathParam("id", "Model ID")}
	jobID := []map[string]interface{}{pathParam("id", "Training job ID")}
	modelFilters := []map[string]interface{}{
		queryParam("status", "Filter by status (ready, deployed, retrained)", "string"),
		queryParam("type", "Filter by model type (xgboost, prophet)", "string"),
		queryParam("dataset_id", "Filter by dataset", "string"),
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Demand Forecast API",
			"description": "Weekly product demand forecasting: dataset processing, per-product model training, model registry and dashboard",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8000", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/health": map[string]interface{}{
				"get": operation("System", "Health check", nil, nil, 503),
			},
			"/datasets": map[string]interface{}{
				"get": operation("Datasets", "List datasets", nil, nil),
				"post": func() map[string]interface{} {
					op := operation("Datasets", "Upload a raw sales file (.xlsx or .csv)", nil, nil, 400)
					op["requestBody"] = map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{"multipart/form-data": map[string]interface{}{"schema": map[string]interface{}{
							"type":     "object",
							"required": []string{"file", "name"},
							"properties": map[string]interface{}{
								"file":        map[string]string{"type": "string", "format": "binary"},
								"name":        str,
								"description": str,
								"tags":        map[string]string{"type": "string", "description": "Comma-separated tags"},
							},
						}}},
					}
					return op
				}(),
			},
			"/datasets/raw/list":       map[string]interface{}{"get": operation("Datasets", "List raw files on disk", nil, nil)},
			"/datasets/processed/list": map[string]interface{}{"get": operation("Datasets", "List processed weekly files on disk", nil, nil)},
			"/datasets/{id}": map[string]interface{}{
				"get": operation("Datasets", "Get a dataset", datasetID, nil, 404),
				"patch": operation("Datasets", "Update dataset metadata", datasetID, jsonBody(map[string]interface{}{
					"name": str, "description": str, "tags": strList,
				}), 400, 404),
				"delete": operation("Datasets", "Delete a dataset and its files", datasetID, nil, 404),
			},
			"/datasets/{id}/download": map[string]interface{}{"get": operation("Datasets", "Download the raw file", datasetID, nil, 404)},
			"/datasets/{id}/visualization": map[string]interface{}{"get": operation("Datasets", "Weekly demand chart (PNG)",
				append(datasetID, queryParam("product_code", "Plot one product instead of the first ten", "string")), nil, 404)},
			"/train": map[string]interface{}{
				"post": operation("Training", "Start a training job", nil, jsonBody(map[string]interface{}{
					"dataset_id": str, "model_type": map[string]interface{}{"type": "string", "enum": []string{"xgboost", "prophet"}},
					"parameters": object, "test_ratio": number,
				}, "dataset_id", "model_type"), 400, 404),
			},
			"/train/validate": map[string]interface{}{
				"post": operation("Training", "Check whether a dataset is sufficient for training", nil, jsonBody(map[string]interface{}{
					"dataset_id": str,
				}, "dataset_id"), 404),
			},
			"/train/jobs": map[string]interface{}{"get": operation("Training", "List training jobs", []map[string]interface{}{
				queryParam("status", "Filter by status", "string"),
				queryParam("dataset_id", "Filter by dataset", "string"),
				queryParam("model_type", "Filter by model type", "string"),
			}, nil)},
			"/train/job/{id}/status": map[string]interface{}{"get": operation("Training", "Job status", jobID, nil, 404)},
			"/train/job/{id}/result": map[string]interface{}{"get": operation("Training", "Job metrics and results", jobID, nil, 400, 404)},
			"/models":                map[string]interface{}{"get": operation("Models", "List models", modelFilters, nil)},
			"/models/best": map[string]interface{}{"get": operation("Models", "Best model by metric",
				append([]map[string]interface{}{queryParam("metric", "mae, rmse, mape (default) or r2", "string")}, modelFilters...), nil, 400, 404)},
			"/models/{id}": map[string]interface{}{
				"get": operation("Models", "Get a model", modelID, nil, 404),
				"patch": operation("Models", "Update model metadata", modelID, jsonBody(map[string]interface{}{
					"name": str, "description": str, "tags": strList, "parameters": object,
				}), 400, 404),
				"delete": operation("Models", "Delete a model", modelID, nil, 404),
			},
			"/models/{id}/deploy": map[string]interface{}{"post": operation("Models", "Deploy a model", modelID, nil, 404)},
			"/models/{id}/retrain": map[string]interface{}{"post": operation("Models", "Retrain a model on its dataset", modelID, jsonBody(map[string]interface{}{
				"parameters": object, "test_ratio": number,
			}), 400, 404)},
			"/models/{id}/predict": map[string]interface{}{"post": operation("Models", "Predict demand of one product for the week of a date", modelID, jsonBody(map[string]interface{}{
				"product_code": str, "date": map[string]string{"type": "string", "format": "date"},
			}, "product_code", "date"), 400, 404)},
			"/models/{id}/batch_predict": map[string]interface{}{"post": operation("Models", "Weekly predictions for several products", modelID, jsonBody(map[string]interface{}{
				"products": strList, "start_date": map[string]string{"type": "string", "format": "date"}, "end_date": map[string]string{"type": "string", "format": "date"},
			}, "products", "start_date", "end_date"), 400, 404)},
			"/models/{id}/performance": map[string]interface{}{"get": operation("Models", "Fitted values against history for one product",
				append(modelID, queryParam("product_code", "Product code", "string"), queryParam("window", "Rolling window in weeks (default 4)", "integer")), nil, 400, 404, 422)},
			"/models/{id}/download":  map[string]interface{}{"get": operation("Models", "Download the fitted model file", modelID, nil, 404)},
			"/dashboard/metrics":     map[string]interface{}{"get": operation("Dashboard", "Counts, average metrics of deployed models, recent jobs", nil, nil)},
			"/dashboard/performance": map[string]interface{}{"get": operation("Dashboard", "Metrics of each deployed model", nil, nil)},
			"/dashboard/trends":      map[string]interface{}{"get": operation("Dashboard", "Weekly and monthly demand of the latest dataset", nil, nil)},
			"/dashboard/alerts":      map[string]interface{}{"get": operation("Dashboard", "Failed jobs, poor and stale models", nil, nil)},
			"/dashboard/summary":     map[string]interface{}{"get": operation("Dashboard", "System summary", nil, nil)},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Success": map[string]interface{}{
					"type":                 "object",
					"properties":           map[string]interface{}{"success": map[string]string{"type": "boolean"}},
					"additionalProperties": true,
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"success": map[string]string{"type": "boolean"},
						"error":   str,
						"message": str,
						"code":    map[string]string{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
