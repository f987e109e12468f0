// Package docs содержит описание API для Swagger UI.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/akozadaev/go_quarry_depth_finder"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Возвращает статус сервиса",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Проверка здоровья",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/config/map": {
            "get": {
                "produces": ["application/json"],
                "tags": ["map"],
                "summary": "Параметры карты",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MapConfig"}}
                }
            }
        },
        "/session": {
            "get": {
                "description": "Этап сессии, HTML и Markdown панели результатов, журнал событий и слои карты",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Текущая сессия",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}}
                }
            }
        },
        "/session/ws": {
            "get": {
                "description": "После подключения отправляет текущий снимок, затем снимок после каждого изменения",
                "tags": ["session"],
                "summary": "Поток обновлений сессии",
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/session/drawing": {
            "post": {
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Начать рисование",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}}
                }
            }
        },
        "/session/polygon": {
            "post": {
                "description": "Заменяет нарисованные объекты полигоном и запускает загрузку высот и анализ глубины",
                "consumes": ["application/json", "application/geo+json"],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Нарисовать полигон",
                "parameters": [
                    {"description": "Вершины полигона", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PolygonRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                    "400": {"description": "Неверный полигон", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/session/marker": {
            "post": {
                "description": "Требует нарисованный полигон. Запускает анализ с опорной точкой",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Поставить маркер",
                "parameters": [
                    {"description": "Координаты маркера", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.Vertex"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                    "400": {"description": "Нет полигона", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/session/upload": {
            "post": {
                "description": "Принимаются только файлы .tif и .tiff",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Загрузить DEM",
                "parameters": [
                    {"type": "file", "description": "GeoTIFF", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                    "400": {"description": "Неверный файл", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/scan": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["map"],
                "summary": "Найти карьеры",
                "parameters": [
                    {"description": "Видимая область", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.BoundingBox"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ScanResponse"}},
                    "502": {"description": "Overpass недоступен", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/sites": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sites"],
                "summary": "Сохраненные участки",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SitesListResponse"}},
                    "502": {"description": "Backend недоступен", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sites"],
                "summary": "Сохранить участок",
                "parameters": [
                    {"description": "Имя и вершины", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.SaveSiteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.SitesListResponse"}},
                    "400": {"description": "Пустое имя", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/sites/{id}/load": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sites"],
                "summary": "Загрузить участок",
                "parameters": [
                    {"type": "string", "description": "Идентификатор участка", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "description": "Запустить анализ глубины", "name": "analyze", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}}
                }
            }
        },
        "/sites/{id}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["sites"],
                "summary": "Удалить участок",
                "parameters": [
                    {"type": "string", "description": "Идентификатор участка", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "description": "Подтверждение", "name": "confirm", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SitesListResponse"}},
                    "400": {"description": "Нет подтверждения", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "История анализов",
                "parameters": [
                    {"type": "integer", "description": "Количество записей", "name": "limit", "in": "query"},
                    {"type": "number", "description": "Южная граница", "name": "minLat", "in": "query"},
                    {"type": "number", "description": "Северная граница", "name": "maxLat", "in": "query"},
                    {"type": "number", "description": "Западная граница", "name": "minLng", "in": "query"},
                    {"type": "number", "description": "Восточная граница", "name": "maxLng", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HistoryResponse"}},
                    "503": {"description": "История отключена", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "models.Vertex": {
            "type": "object",
            "properties": {
                "lat": {"type": "number", "example": 20.5937},
                "lng": {"type": "number", "example": 78.9629}
            }
        },
        "models.BoundingBox": {
            "type": "object",
            "properties": {
                "minLat": {"type": "number"},
                "maxLat": {"type": "number"},
                "minLng": {"type": "number"},
                "maxLng": {"type": "number"}
            }
        },
        "models.MapConfig": {
            "type": "object",
            "properties": {
                "tile_url": {"type": "string"},
                "labels_url": {"type": "string"},
                "geocoder_api_key": {"type": "string"},
                "center": {"$ref": "#/definitions/models.Vertex"},
                "zoom": {"type": "integer", "example": 5}
            }
        },
        "models.SaveSiteRequest": {
            "type": "object",
            "properties": {
                "sitename": {"type": "string", "example": "North Pit"},
                "coords": {"type": "array", "items": {"$ref": "#/definitions/models.Vertex"}}
            }
        },
        "models.Site": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "date": {"type": "string"},
                "coords": {"type": "array", "items": {"$ref": "#/definitions/models.Vertex"}}
            }
        },
        "models.QuarryMarker": {
            "type": "object",
            "properties": {
                "osm_type": {"type": "string"},
                "osm_id": {"type": "integer"},
                "name": {"type": "string"},
                "landuse": {"type": "string"},
                "lat": {"type": "number"},
                "lng": {"type": "number"}
            }
        },
        "models.AnalysisRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "session_id": {"type": "string"},
                "source": {"type": "string"},
                "polygon": {"type": "array", "items": {"$ref": "#/definitions/models.Vertex"}},
                "area_m2": {"type": "number"},
                "stats": {"type": "object"},
                "fallback": {"type": "boolean"},
                "outcome": {"type": "string"},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"}
            }
        },
        "handlers.PolygonRequest": {
            "type": "object",
            "properties": {
                "coords": {"type": "array", "items": {"$ref": "#/definitions/models.Vertex"}}
            }
        },
        "handlers.SessionResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "stage": {"type": "string", "enum": ["idle", "awaiting_elevation", "awaiting_depth", "complete", "failed"]},
                "source": {"type": "string"},
                "polygon": {"type": "array", "items": {"$ref": "#/definitions/models.Vertex"}},
                "bbox": {"$ref": "#/definitions/models.BoundingBox"},
                "reference_point": {"$ref": "#/definitions/models.Vertex"},
                "filename": {"type": "string"},
                "area_m2": {"type": "number"},
                "perimeter_m": {"type": "number"},
                "fallback": {"type": "boolean"},
                "error": {"type": "string"},
                "html": {"type": "string"},
                "markdown": {"type": "string"},
                "log": {"type": "array", "items": {"type": "object"}},
                "version": {"type": "integer"},
                "view": {"type": "object"},
                "map": {"type": "object"}
            }
        },
        "handlers.ScanResponse": {
            "type": "object",
            "properties": {
                "markers": {"type": "array", "items": {"$ref": "#/definitions/models.QuarryMarker"}},
                "html": {"type": "string"}
            }
        },
        "handlers.SitesListResponse": {
            "type": "object",
            "properties": {
                "sites": {"type": "array", "items": {"$ref": "#/definitions/models.Site"}},
                "html": {"type": "string"}
            }
        },
        "handlers.HistoryResponse": {
            "type": "object",
            "properties": {
                "analyses": {"type": "array", "items": {"$ref": "#/definitions/models.AnalysisRecord"}},
                "total": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo содержит экспортируемую информацию Swagger, чтобы клиенты могли изменять её
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Quarry Depth Finder API",
	Description:      "Backend-for-frontend сервер анализа глубины карьеров: рисование полигона, загрузка высот, анализ глубины, сохраненные участки и история анализов.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
