package httpapi

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "clientvault",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": map[string]any{"summary": "Health check"},
			},
			"/api/clients": map[string]any{
				"get":  map[string]any{"summary": "List clients"},
				"post": map[string]any{"summary": "Create client (multipart: ci, names, address, phone, photo1..photo3)"},
			},
			"/api/clients/{ci}": map[string]any{
				"get":    map[string]any{"summary": "Get client"},
				"put":    map[string]any{"summary": "Update client"},
				"delete": map[string]any{"summary": "Delete client"},
			},
			"/api/files/upload-zip": map[string]any{
				"post": map[string]any{"summary": "Ingest a zip archive for a client (multipart: clientId, archive)"},
			},
			"/api/files/{clientId}": map[string]any{
				"get": map[string]any{"summary": "List ingested files of a client"},
			},
			"/api/logs": map[string]any{
				"get": map[string]any{"summary": "Query audit records (kind, fromUtc, toUtc, method, q, page, pageSize)"},
			},
			"/api/logs/{id}": map[string]any{
				"get": map[string]any{"summary": "Get one audit record"},
			},
		},
	}
}
