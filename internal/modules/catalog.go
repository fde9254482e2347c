package modules

import "net/http"

// Module names.
const (
	Ingestion      = "ingestion"
	QA             = "qa"
	GraphQuery     = "graph_query"
	ChunkEntities  = "chunk_entities"
	PostProcessing = "post_processing"
	Communities    = "communities"
	Neighbours     = "neighbours"
	Evaluation     = "evaluation"
)

func post(path string) Route { return Route{Method: http.MethodPost, Path: path} }
func get(path string) Route  { return Route{Method: http.MethodGet, Path: path} }

// Catalog returns the complete, ordered list of delegated modules, each
// served by handler.
func Catalog(handler http.Handler) []Module {
	return []Module{
		newDelegated(Ingestion, handler,
			post("/connect"),
			post("/backend_connection_configuration"),
			post("/upload"),
			post("/url/scan"),
			post("/extract"),
			post("/sources_list"),
			get("/update_extract_status/{file_name}"),
			get("/document_status/{file_name}"),
			post("/cancelled_job"),
			post("/retry_processing"),
			post("/delete_document_and_entities"),
			post("/schema"),
			post("/populate_graph_schema"),
		),
		newDelegated(QA, handler,
			post("/chat_bot"),
			post("/clear_chat_bot"),
		),
		newDelegated(GraphQuery, handler,
			post("/graph_query"),
			post("/fetch_chunktext"),
			post("/schema_visualization"),
		),
		newDelegated(ChunkEntities, handler,
			post("/chunk_entities"),
		),
		newDelegated(PostProcessing, handler,
			post("/post_processing"),
			post("/drop_create_vector_index"),
			post("/get_unconnected_nodes_list"),
			post("/delete_unconnected_nodes"),
			post("/get_duplicate_nodes"),
			post("/merge_duplicate_nodes"),
		),
		newDelegated(Communities, handler,
			post("/create_communities"),
		),
		newDelegated(Neighbours, handler,
			post("/get_neighbours"),
		),
		newDelegated(Evaluation, handler,
			post("/metric"),
			post("/additional_metrics"),
		),
	}
}
