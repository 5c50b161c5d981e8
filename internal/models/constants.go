package models

const (
	// metadata keys stored with every indexed chunk
	MetaKind   = "kind"
	MetaSource = "source"
	MetaTitle  = "title"
	MetaIndex  = "chunk_index"

	KindChunk    = "chunk"
	KindManifest = "manifest"

	ContextSeparator = "\n---\n"
)

var (
	SystemPromptTemplate = `You are a research assistant answering questions about news articles the user supplied.
Use only the context below to answer. If the context does not contain the answer, say that you don't know.
Keep the answer concise and factual.

Context:
%s`

	ContextEntryTemplate = `[%d] Source: %s
%s`
)
